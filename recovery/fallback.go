// ABOUTME: Primary/fallback execution: run an alternate unit of work when the primary fails.
// ABOUTME: Surfaces a combined FallbackError carrying both failures so neither is silently dropped.
package recovery

import (
	"context"
	"fmt"
)

// FallbackError reports that both the primary and fallback operations
// failed. Both underlying errors are retained.
type FallbackError struct {
	Primary  error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("both primary and fallback operations failed. Primary: %v, Fallback: %v", e.Primary, e.Fallback)
}

// Unwrap exposes both underlying errors to errors.Is and errors.As.
func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// RunWithFallback executes primary; on any failure it executes fallback.
// If the fallback also fails, the returned error is a *FallbackError
// combining both failures. No classification or retry happens here —
// compose with Run on either side when that is wanted.
func RunWithFallback[T any](ctx context.Context, primary, fallback func(context.Context) (T, error)) (T, error) {
	result, primaryErr := primary(ctx)
	if primaryErr == nil {
		return result, nil
	}

	result, fallbackErr := fallback(ctx)
	if fallbackErr == nil {
		return result, nil
	}

	var zero T
	return zero, &FallbackError{Primary: primaryErr, Fallback: fallbackErr}
}
