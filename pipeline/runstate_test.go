// ABOUTME: RunState tests covering artifact ordering, status transitions,
// ABOUTME: error/approval recording, and exact JSON round-trip serialization.
package pipeline

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/2389-research/longform/recovery"
)

func TestNewRunStateDefaults(t *testing.T) {
	s := NewRunState("deep sea mining")
	if s.RunID == "" {
		t.Error("expected a run ID")
	}
	if s.Topic != "deep sea mining" {
		t.Errorf("unexpected topic %q", s.Topic)
	}
	if s.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", s.Status)
	}
	if s.IterationCounts[LoopResearch] != 0 || s.IterationCounts[LoopRevision] != 0 {
		t.Errorf("expected zeroed counters, got %v", s.IterationCounts)
	}
	if NewRunState("x").RunID == s.RunID {
		t.Error("run IDs must be unique")
	}
}

func TestSetArtifactOverwritesInPlace(t *testing.T) {
	s := NewRunState("topic")
	s.SetArtifact(StageDraft, "v1")
	s.SetArtifact(StageReviewFeedback, "needs work")
	s.SetArtifact(StageDraft, "v2")

	if got, ok := s.Artifact(StageDraft); !ok || got != "v2" {
		t.Errorf("expected v2, got %q (ok=%v)", got, ok)
	}
	// Overwriting keeps the original position.
	if s.Artifacts[0].Stage != StageDraft || s.Artifacts[1].Stage != StageReviewFeedback {
		t.Errorf("unexpected artifact order: %+v", s.Artifacts)
	}
	if len(s.Artifacts) != 2 {
		t.Errorf("expected 2 entries, got %d", len(s.Artifacts))
	}
}

func TestArtifactMissing(t *testing.T) {
	s := NewRunState("topic")
	if _, ok := s.Artifact(StageSummary); ok {
		t.Error("expected missing artifact")
	}
}

func TestTransitionTerminalIsSticky(t *testing.T) {
	s := NewRunState("topic")
	s.Transition(StatusCancelled)
	s.Transition(StatusCompleted)
	if s.Status != StatusCancelled {
		t.Errorf("terminal status must be sticky, got %s", s.Status)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusInProgress.Terminal() {
		t.Error("in_progress is not terminal")
	}
	for _, st := range []Status{StatusCompleted, StatusCancelled, StatusFailed} {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
}

func TestRecordErrorClassifies(t *testing.T) {
	s := NewRunState("topic")
	s.RecordError(StageDraft, errors.New("request timeout after 30s"))
	if len(s.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(s.Errors))
	}
	e := s.Errors[0]
	if e.Stage != StageDraft || e.Category != recovery.CategoryTimeout {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestRecordApproval(t *testing.T) {
	s := NewRunState("topic")
	s.RecordApproval(CheckpointPlan, true)
	s.RecordApproval(CheckpointMaxRevisions, false)
	if len(s.Approvals) != 2 {
		t.Fatalf("expected 2 approvals, got %d", len(s.Approvals))
	}
	if s.Approvals[0].ID == "" || s.Approvals[0].ID == s.Approvals[1].ID {
		t.Error("approval IDs must be unique and non-empty")
	}
	if !s.Approvals[0].Approved || s.Approvals[1].Approved {
		t.Errorf("decisions recorded wrong: %+v", s.Approvals)
	}
}

func TestRunStateJSONRoundTrip(t *testing.T) {
	s := NewRunState("quantum error correction")
	s.SetArtifact(StagePlan, "the plan")
	s.SetArtifact(StageDraft, "the draft")
	s.IterationCounts[LoopRevision] = 2
	s.RecordApproval(CheckpointPlan, true)
	s.RecordError(StageDraft, errors.New("connection refused"))
	s.Transition(StatusFailed)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back RunState
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(*s, back) {
		t.Errorf("round trip mismatch:\n before: %+v\n after:  %+v", *s, back)
	}

	// Artifact ordering survives a second marshal byte-for-byte.
	data2, err := json.Marshal(&back)
	if err != nil {
		t.Fatalf("remarshal: %v", err)
	}
	if string(data) != string(data2) {
		t.Errorf("serialization is not stable:\n first:  %s\n second: %s", data, data2)
	}
}
