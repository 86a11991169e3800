// ABOUTME: RunState is the mutable record of one pipeline execution: artifacts, counters, approvals, errors.
// ABOUTME: Provides run ID generation, monotonic status transitions, and exact JSON round-trip serialization.
package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/longform/recovery"
)

// Status is the lifecycle state of a run. Transitions are monotonic:
// in_progress is initial; completed, cancelled, and failed are terminal.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Stage artifact keys, in pipeline order.
const (
	StagePlan           = "plan"
	StageResearchNotes  = "research_notes"
	StageDraft          = "draft"
	StageReviewFeedback = "review_feedback"
	StageRevised        = "revised"
	StageFactCheck      = "fact_check"
	StageFormatted      = "formatted"
	StageSummary        = "summary"
	StageFinalPath      = "final_path"
)

// Loop names tracked in IterationCounts.
const (
	LoopResearch = "research"
	LoopRevision = "revision"
)

// ArtifactEntry is one stage's latest produced text. Entries keep their
// insertion position when overwritten, so serialization preserves the
// order stages first completed in.
type ArtifactEntry struct {
	Stage string `json:"stage"`
	Text  string `json:"text"`
}

// ApprovalDecision records one resolved approval gate.
type ApprovalDecision struct {
	ID         string    `json:"id"`
	Checkpoint string    `json:"checkpoint"`
	Approved   bool      `json:"approved"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorEntry is one classified failure appended to the run's error log.
type ErrorEntry struct {
	Stage     string            `json:"stage"`
	Category  recovery.Category `json:"category"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

// RunState is the full state of a single pipeline run. It is owned
// exclusively by the Engine executing the run; nothing else mutates it.
type RunState struct {
	RunID           string             `json:"run_id"`
	CreatedAt       time.Time          `json:"created_at"`
	Topic           string             `json:"topic"`
	Artifacts       []ArtifactEntry    `json:"artifacts"`
	IterationCounts map[string]int     `json:"iteration_counts"`
	Approvals       []ApprovalDecision `json:"approvals"`
	Errors          []ErrorEntry       `json:"errors"`
	Status          Status             `json:"status"`
}

// NewRunState creates a RunState for the given topic with a fresh run ID,
// zeroed loop counters, and in_progress status.
func NewRunState(topic string) *RunState {
	return &RunState{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Topic:     topic,
		IterationCounts: map[string]int{
			LoopResearch: 0,
			LoopRevision: 0,
		},
		Status: StatusInProgress,
	}
}

// SetArtifact stores the latest text for a stage, overwriting any earlier
// value in place. Earlier values are not retained.
func (s *RunState) SetArtifact(stage, text string) {
	for i := range s.Artifacts {
		if s.Artifacts[i].Stage == stage {
			s.Artifacts[i].Text = text
			return
		}
	}
	s.Artifacts = append(s.Artifacts, ArtifactEntry{Stage: stage, Text: text})
}

// Artifact returns the latest text for a stage and whether it exists.
func (s *RunState) Artifact(stage string) (string, bool) {
	for i := range s.Artifacts {
		if s.Artifacts[i].Stage == stage {
			return s.Artifacts[i].Text, true
		}
	}
	return "", false
}

// RecordError classifies err and appends it to the error log.
func (s *RunState) RecordError(stage string, err error) {
	s.Errors = append(s.Errors, ErrorEntry{
		Stage:     stage,
		Category:  recovery.Classify(err).Category,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// RecordApproval appends an approval decision with a sortable ULID.
func (s *RunState) RecordApproval(checkpoint string, approved bool) {
	now := time.Now().UTC()
	s.Approvals = append(s.Approvals, ApprovalDecision{
		ID:         ulid.Make().String(),
		Checkpoint: checkpoint,
		Approved:   approved,
		Timestamp:  now,
	})
}

// Transition moves the run to a new status. Terminal states are sticky:
// a transition away from one is ignored.
func (s *RunState) Transition(to Status) {
	if s.Status.Terminal() {
		return
	}
	s.Status = to
}
