// ABOUTME: Approver is the human-in-the-loop decision gate consulted at pipeline checkpoints.
// ABOUTME: Provides AutoApprover, QueueApprover, RecordingApprover, and CallbackApprover implementations.
package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Approver is the abstraction for human approval gates. Any frontend
// (console prompt, web callback, chat bot) implements this interface.
// RequestApproval blocks until a decision is made; extra carries
// additional context shown alongside the content (e.g. the last review
// feedback at the revision escalation gate). The gate itself has no
// side effect on the run state; the caller records the decision.
type Approver interface {
	RequestApproval(ctx context.Context, checkpoint, content, extra string) (bool, error)
}

// Decision records one resolved approval request for auditing and replay.
type Decision struct {
	Checkpoint string
	Approved   bool
}

// --- AutoApprover ---

// AutoApprover always returns a fixed decision. Intended for tests and
// unattended pipelines where no human is available.
type AutoApprover struct {
	approve bool
}

// NewAutoApprover creates an AutoApprover returning the given decision.
func NewAutoApprover(approve bool) *AutoApprover {
	return &AutoApprover{approve: approve}
}

// RequestApproval returns the configured decision.
func (a *AutoApprover) RequestApproval(ctx context.Context, checkpoint, content, extra string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return a.approve, nil
}

// --- QueueApprover ---

// QueueApprover dequeues pre-loaded decisions in FIFO order. Intended
// for deterministic testing; an exhausted queue is an error.
type QueueApprover struct {
	decisions []bool
	mu        sync.Mutex
}

// NewQueueApprover creates a QueueApprover pre-loaded with decisions.
func NewQueueApprover(decisions ...bool) *QueueApprover {
	return &QueueApprover{decisions: append([]bool{}, decisions...)}
}

// RequestApproval dequeues the next decision.
func (q *QueueApprover) RequestApproval(ctx context.Context, checkpoint, content, extra string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.decisions) == 0 {
		return false, fmt.Errorf("decision queue exhausted: no answer for checkpoint %q", checkpoint)
	}
	d := q.decisions[0]
	q.decisions = q.decisions[1:]
	return d, nil
}

// --- RecordingApprover ---

// RecordingApprover wraps another Approver and records every decision.
type RecordingApprover struct {
	inner     Approver
	decisions []Decision
	mu        sync.Mutex
}

// NewRecordingApprover wraps inner with decision recording.
func NewRecordingApprover(inner Approver) *RecordingApprover {
	return &RecordingApprover{inner: inner}
}

// RequestApproval delegates to the inner Approver and records the outcome.
func (r *RecordingApprover) RequestApproval(ctx context.Context, checkpoint, content, extra string) (bool, error) {
	approved, err := r.inner.RequestApproval(ctx, checkpoint, content, extra)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, Decision{Checkpoint: checkpoint, Approved: approved})
	return approved, nil
}

// Decisions returns a copy of all recorded decisions.
func (r *RecordingApprover) Decisions() []Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Decision, len(r.decisions))
	copy(out, r.decisions)
	return out
}

// --- CallbackApprover ---

// CallbackApprover delegates the decision to a provided function.
// Useful for wiring external transports (web UI, Slack, API polling).
type CallbackApprover struct {
	fn func(ctx context.Context, checkpoint, content, extra string) (bool, error)
}

// NewCallbackApprover creates a CallbackApprover around the given function.
func NewCallbackApprover(fn func(ctx context.Context, checkpoint, content, extra string) (bool, error)) *CallbackApprover {
	return &CallbackApprover{fn: fn}
}

// RequestApproval delegates to the callback.
func (c *CallbackApprover) RequestApproval(ctx context.Context, checkpoint, content, extra string) (bool, error) {
	return c.fn(ctx, checkpoint, content, extra)
}
