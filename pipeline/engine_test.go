// ABOUTME: Engine tests covering the full stage sequence, the review/revise loop,
// ABOUTME: plan rejection, escalation, retry behavior, and persistence warnings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2389-research/longform/llm"
	"github.com/2389-research/longform/recovery"
)

type memDocs struct {
	mu        sync.Mutex
	runID     string
	formatted string
	summary   string
	err       error
}

func (m *memDocs) WriteDocument(runID, formatted, summary string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.runID = runID
	m.formatted = formatted
	m.summary = summary
	return "/tmp/reports/" + runID + ".html", nil
}

type memStore struct {
	mu        sync.Mutex
	created   int
	updates   int
	updateErr error
	last      RunState
}

func (m *memStore) Create(state *RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	m.last = *state
	return nil
}

func (m *memStore) Update(state *RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	m.last = *state
	return nil
}

// fastRetry keeps test retry delays negligible.
func fastRetry() recovery.Policy {
	return recovery.Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
	}
}

func collectEvents(events *[]Event, mu *sync.Mutex) func(Event) {
	return func(e Event) {
		mu.Lock()
		*events = append(*events, e)
		mu.Unlock()
	}
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestExecuteHappyPathAcceptedFirstReview(t *testing.T) {
	gen := llm.NewScriptedGenerator(
		"the plan",
		"the notes",
		"the draft",
		"Excellent work, ready to publish.",
		"fact-check findings",
		"formatted report",
		"executive summary",
	)
	docs := &memDocs{}
	store := &memStore{}

	eng, err := New(Config{
		Generator: gen,
		Approver:  NewAutoApprover(true),
		Store:     store,
		Documents: docs,
		Retry:     fastRetry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := eng.Execute(context.Background(), "ocean currents")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Summary != "executive summary" {
		t.Errorf("unexpected summary %q", result.Summary)
	}
	if !strings.HasSuffix(result.FinalPath, result.RunID+".html") {
		t.Errorf("unexpected final path %q", result.FinalPath)
	}
	if docs.formatted != "formatted report" || docs.summary != "executive summary" {
		t.Errorf("document writer received %q / %q", docs.formatted, docs.summary)
	}

	// Acceptance on the first review means the draft is the final report
	// and the revision counter stops at 1.
	if revised, _ := store.last.Artifact(StageRevised); revised != "the draft" {
		t.Errorf("expected revised artifact to equal the draft, got %q", revised)
	}
	if n := store.last.IterationCounts[LoopRevision]; n != 1 {
		t.Errorf("expected 1 revision iteration, got %d", n)
	}
	if store.created != 1 {
		t.Errorf("expected 1 create, got %d", store.created)
	}
	if len(store.last.Approvals) != 1 || store.last.Approvals[0].Checkpoint != CheckpointPlan {
		t.Errorf("expected single plan approval, got %+v", store.last.Approvals)
	}
	wantOrder := []string{
		StagePlan, StageResearchNotes, StageDraft, StageReviewFeedback,
		StageRevised, StageFactCheck, StageFormatted, StageSummary, StageFinalPath,
	}
	if len(store.last.Artifacts) != len(wantOrder) {
		t.Fatalf("expected %d artifacts, got %d", len(wantOrder), len(store.last.Artifacts))
	}
	for i, entry := range store.last.Artifacts {
		if entry.Stage != wantOrder[i] {
			t.Errorf("artifact %d: expected stage %s, got %s", i, wantOrder[i], entry.Stage)
		}
	}
}

func TestExecutePlanRejectedCancelsWithoutError(t *testing.T) {
	gen := llm.NewRecordingGenerator(llm.NewScriptedGenerator("the plan"))

	eng, err := New(Config{
		Generator: gen,
		Approver:  NewAutoApprover(false),
		Documents: &memDocs{},
		Retry:     fastRetry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := eng.Execute(context.Background(), "ocean currents")
	if err != nil {
		t.Fatalf("plan rejection must not be an error, got %v", err)
	}
	if result.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Status)
	}
	if result.Reason == "" {
		t.Error("expected a cancellation reason")
	}
	if calls := gen.Calls(); len(calls) != 1 {
		t.Errorf("research must not run after plan rejection, got %d generator calls", len(calls))
	}
}

func TestReviewLoopEscalatesAfterMaxIterations(t *testing.T) {
	gen := llm.NewScriptedGenerator(
		"the plan",
		"the notes",
		"the draft",
		"needs work 1", "rev1",
		"needs work 2", "rev2",
		"needs work 3", "rev3",
		"fact-check findings",
		"formatted report",
		"executive summary",
	)

	var escalations []struct{ content, extra string }
	plan := true
	approver := NewCallbackApprover(func(ctx context.Context, checkpoint, content, extra string) (bool, error) {
		if checkpoint == CheckpointPlan {
			if !plan {
				t.Error("plan checkpoint requested twice")
			}
			plan = false
			return true, nil
		}
		if checkpoint != CheckpointMaxRevisions {
			t.Errorf("unexpected checkpoint %q", checkpoint)
		}
		escalations = append(escalations, struct{ content, extra string }{content, extra})
		return true, nil
	})

	store := &memStore{}
	eng, err := New(Config{
		Generator:     gen,
		Approver:      approver,
		Store:         store,
		Documents:     &memDocs{},
		MaxIterations: 3,
		Retry:         fastRetry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := eng.Execute(context.Background(), "ocean currents")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if len(escalations) != 1 {
		t.Fatalf("expected exactly one escalation, got %d", len(escalations))
	}
	if escalations[0].content != "rev3" {
		t.Errorf("escalation content should be the last revision, got %q", escalations[0].content)
	}
	if escalations[0].extra != "needs work 3" {
		t.Errorf("escalation extra should be the last feedback, got %q", escalations[0].extra)
	}
	if n := store.last.IterationCounts[LoopRevision]; n != 3 {
		t.Errorf("expected 3 revision iterations, got %d", n)
	}
	if revised, _ := store.last.Artifact(StageRevised); revised != "rev3" {
		t.Errorf("expected final revised artifact rev3, got %q", revised)
	}
}

func TestReviewLoopEscalationRejectedFailsRun(t *testing.T) {
	gen := llm.NewScriptedGenerator(
		"the plan",
		"the notes",
		"the draft",
		"needs work 1", "rev1",
		"needs work 2", "rev2",
		"needs work 3", "rev3",
	)

	store := &memStore{}
	eng, err := New(Config{
		Generator:     gen,
		Approver:      NewQueueApprover(true, false), // plan yes, escalation no
		Store:         store,
		Documents:     &memDocs{},
		MaxIterations: 3,
		Retry:         fastRetry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := eng.Execute(context.Background(), "ocean currents")
	if !errors.Is(err, ErrRejectedAfterMaxRevisions) {
		t.Fatalf("expected ErrRejectedAfterMaxRevisions, got %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if store.last.Status != StatusFailed {
		t.Errorf("persisted status should be failed, got %s", store.last.Status)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %d", len(result.Errors))
	}
}

func TestExecuteCriticalErrorFailsWithoutRetry(t *testing.T) {
	gen := llm.NewScriptedGenerator()
	gen.EnqueueError(errors.New("validation failed: topic must not be empty"))

	var mu sync.Mutex
	var events []Event
	store := &memStore{}
	eng, err := New(Config{
		Generator:    gen,
		Approver:     NewAutoApprover(true),
		Store:        store,
		Documents:    &memDocs{},
		Retry:        fastRetry(),
		EventHandler: collectEvents(&events, &mu),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := eng.Execute(context.Background(), "ocean currents")
	if err == nil {
		t.Fatal("expected an error for a critical stage failure")
	}
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if len(result.Errors) != 1 || result.Errors[0].Category != recovery.CategoryValidation {
		t.Errorf("expected one validation error entry, got %+v", result.Errors)
	}
	if n := countEvents(events, EventStageRetrying); n != 0 {
		t.Errorf("critical errors must not retry, saw %d retry events", n)
	}
	if n := countEvents(events, EventRunFailed); n != 1 {
		t.Errorf("expected 1 run-failed event, got %d", n)
	}
}

func TestExecuteRetriesRecoverableErrorThenSucceeds(t *testing.T) {
	gen := llm.NewScriptedGenerator()
	gen.EnqueueError(errors.New("connection reset by peer"))
	gen.Enqueue("the plan")
	for _, r := range []string{
		"the notes", "the draft", "no major issues",
		"fact-check findings", "formatted report", "executive summary",
	} {
		gen.Enqueue(r)
	}

	var mu sync.Mutex
	var events []Event
	eng, err := New(Config{
		Generator:    gen,
		Approver:     NewAutoApprover(true),
		Documents:    &memDocs{},
		Retry:        fastRetry(),
		EventHandler: collectEvents(&events, &mu),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := eng.Execute(context.Background(), "ocean currents")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if n := countEvents(events, EventStageRetrying); n != 1 {
		t.Errorf("expected 1 retry event, got %d", n)
	}
}

func TestExecutePersistWarningDoesNotFailRun(t *testing.T) {
	gen := llm.NewScriptedGenerator(
		"the plan", "the notes", "the draft", "no major issues",
		"fact-check findings", "formatted report", "executive summary",
	)

	var mu sync.Mutex
	var events []Event
	store := &memStore{updateErr: fmt.Errorf("disk full")}
	eng, err := New(Config{
		Generator:    gen,
		Approver:     NewAutoApprover(true),
		Store:        store,
		Documents:    &memDocs{},
		Retry:        fastRetry(),
		EventHandler: collectEvents(&events, &mu),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := eng.Execute(context.Background(), "ocean currents")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed despite persistence failures, got %s", result.Status)
	}
	if n := countEvents(events, EventPersistWarning); n == 0 {
		t.Error("expected persist warning events")
	}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	if _, err := New(Config{Approver: NewAutoApprover(true), Documents: &memDocs{}}); err == nil {
		t.Error("expected error for missing generator")
	}
	if _, err := New(Config{Generator: llm.NewScriptedGenerator(), Documents: &memDocs{}}); err == nil {
		t.Error("expected error for missing approver")
	}
	if _, err := New(Config{Generator: llm.NewScriptedGenerator(), Approver: NewAutoApprover(true)}); err == nil {
		t.Error("expected error for missing document writer")
	}
}

func TestReportAccepted(t *testing.T) {
	cases := []struct {
		feedback string
		want     bool
	}{
		{"Excellent work throughout.", true},
		{"I found no major issues with this draft.", true},
		{"This is READY TO PUBLISH as-is.", true},
		{"The introduction needs significant restructuring.", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ReportAccepted(tc.feedback); got != tc.want {
			t.Errorf("ReportAccepted(%q) = %v, want %v", tc.feedback, got, tc.want)
		}
	}
}
