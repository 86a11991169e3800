// ABOUTME: Error classification for the recovery subsystem: category and severity taxonomy.
// ABOUTME: Classify inspects an error's type and message text to decide whether it is worth retrying.
package recovery

import (
	"context"
	"errors"
	"strings"
)

// Category identifies the kind of failure an error represents.
type Category string

const (
	CategoryAPI        Category = "api_error"
	CategoryNetwork    Category = "network_error"
	CategoryTimeout    Category = "timeout_error"
	CategoryValidation Category = "validation_error"
	CategoryResource   Category = "resource_error"
	CategoryUnknown    Category = "unknown_error"
)

// Severity describes how a failure should be handled by callers.
type Severity string

const (
	// SeverityRecoverable failures are transient and worth retrying.
	SeverityRecoverable Severity = "recoverable"
	// SeverityDegraded failures are unclassified; callers may retry or
	// continue in reduced form at their own discretion.
	SeverityDegraded Severity = "degraded"
	// SeverityCritical failures must abort immediately, never retry.
	SeverityCritical Severity = "critical"
)

// Classification pairs a category with its derived severity.
type Classification struct {
	Category Category
	Severity Severity
}

// timeouter matches net.Error and similar types that self-report timeouts.
type timeouter interface {
	Timeout() bool
}

// Classify maps an error to its Classification. It is pure and total:
// any non-nil error yields a result, nil yields the unknown/degraded pair.
// Message checks are case-insensitive substring matches evaluated in a
// fixed order; the first match wins.
func Classify(err error) Classification {
	return Classification{Category: categorize(err), Severity: severityFor(categorize(err))}
}

func categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	msg := strings.ToLower(err.Error())

	var to timeouter
	if strings.Contains(msg, "timeout") ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &to) && to.Timeout()) {
		return CategoryTimeout
	}
	if strings.Contains(msg, "api") || strings.Contains(msg, "401") || strings.Contains(msg, "403") {
		return CategoryAPI
	}
	if strings.Contains(msg, "network") || strings.Contains(msg, "connection") {
		return CategoryNetwork
	}
	if strings.Contains(msg, "validation") || strings.Contains(msg, "invalid") {
		return CategoryValidation
	}
	if strings.Contains(msg, "memory") || strings.Contains(msg, "disk") {
		return CategoryResource
	}
	return CategoryUnknown
}

// severityFor derives severity solely from category. Validation and
// resource failures are permanent: retrying an invalid input or an
// exhausted disk only wastes attempts.
func severityFor(c Category) Severity {
	switch c {
	case CategoryValidation, CategoryResource:
		return SeverityCritical
	case CategoryAPI, CategoryTimeout, CategoryNetwork:
		return SeverityRecoverable
	default:
		return SeverityDegraded
	}
}

// IsRetryable reports whether the error's classification permits a retry.
// Degraded errors count as retryable; only critical ones do not.
func IsRetryable(err error) bool {
	return Classify(err).Severity != SeverityCritical
}
