// ABOUTME: Pipeline execution engine: sequences the content-generation stages for one run.
// ABOUTME: Drives plan approval, the bounded review/revise loop with escalation, retries, and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389-research/longform/llm"
	"github.com/2389-research/longform/recovery"
)

// Checkpoint names for the two approval gates.
const (
	CheckpointPlan         = "Research Plan"
	CheckpointMaxRevisions = "Report After Max Revisions"
)

// DefaultMaxIterations bounds the review/revise loop when Config leaves
// MaxIterations unset.
const DefaultMaxIterations = 3

// ErrRejectedAfterMaxRevisions is returned when the human rejects the
// report at the revision-loop escalation gate.
var ErrRejectedAfterMaxRevisions = errors.New("report rejected by user after max revisions")

// Store is the persistence collaborator the engine writes run state
// through: once per stage completion and once at run termination.
type Store interface {
	Create(state *RunState) error
	Update(state *RunState) error
}

// DocumentWriter assembles the formatted report and summary into the
// run's deliverable and returns its path.
type DocumentWriter interface {
	WriteDocument(runID, formatted, summary string) (string, error)
}

// Config holds the collaborators and knobs for an Engine.
type Config struct {
	Generator     llm.Generator
	Approver      Approver
	Store         Store          // optional; nil disables persistence
	Documents     DocumentWriter // required
	MaxIterations int            // review/revise bound; 0 = DefaultMaxIterations
	Retry         recovery.Policy
	EventHandler  func(Event) // optional observability callback
}

// Engine executes pipeline runs. One Execute call drives one run;
// concurrent runs use separate Execute calls (each owns its RunState).
type Engine struct {
	cfg Config
}

// RunResult is the outcome of one Execute call.
type RunResult struct {
	Status    Status
	RunID     string
	FinalPath string
	Summary   string
	Reason    string
	Errors    []ErrorEntry
}

// New creates an Engine, applying defaults for unset config fields.
func New(cfg Config) (*Engine, error) {
	if cfg.Generator == nil {
		return nil, errors.New("pipeline: Config.Generator is required")
	}
	if cfg.Approver == nil {
		return nil, errors.New("pipeline: Config.Approver is required")
	}
	if cfg.Documents == nil {
		return nil, errors.New("pipeline: Config.Documents is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Retry.Factor == 0 {
		cfg.Retry = recovery.DefaultPolicy()
	}
	return &Engine{cfg: cfg}, nil
}

// Execute runs the full pipeline for a topic:
// plan -> plan approval -> research -> write -> review/revise loop ->
// fact-check -> format -> summarize -> finalize. A rejected plan yields
// a cancelled result without an error; an unrecovered stage failure
// yields a failed result and the error.
func (e *Engine) Execute(ctx context.Context, topic string) (*RunResult, error) {
	state := NewRunState(topic)

	// The record exists before the run is announced, so observers that
	// pick up the run ID from the event can read it immediately.
	if e.cfg.Store != nil {
		if err := e.cfg.Store.Create(state); err != nil {
			return nil, fmt.Errorf("create run record: %w", err)
		}
	}
	e.emit(Event{Type: EventRunStarted, RunID: state.RunID, Data: map[string]any{"topic": topic}})

	plan, err := e.runStage(ctx, state, StagePlan, RolePlanner,
		"Create a comprehensive research plan for: "+topic)
	if err != nil {
		return e.fail(state, StagePlan, err)
	}

	approved, err := e.requestApproval(ctx, state, CheckpointPlan, plan, "")
	if err != nil {
		return e.fail(state, StagePlan, err)
	}
	if !approved {
		state.Transition(StatusCancelled)
		e.persist(state)
		e.emit(Event{Type: EventRunCancelled, RunID: state.RunID})
		return &RunResult{
			Status: StatusCancelled,
			RunID:  state.RunID,
			Reason: "plan rejected by user",
			Errors: state.Errors,
		}, nil
	}

	state.IterationCounts[LoopResearch]++
	notes, err := e.runStage(ctx, state, StageResearchNotes, RoleResearcher,
		"Topic: "+topic+"\n\nResearch Plan:\n"+plan+"\n\n"+
			"Please conduct thorough research following this plan and provide detailed notes with sources.")
	if err != nil {
		return e.fail(state, StageResearchNotes, err)
	}

	draft, err := e.runStage(ctx, state, StageDraft, RoleWriter,
		"Topic: "+topic+"\n\nResearch Notes:\n"+notes+"\n\n"+
			"Please write a comprehensive, well-structured report based on these research notes.")
	if err != nil {
		return e.fail(state, StageDraft, err)
	}

	report, err := e.reviewAndRevise(ctx, state, draft)
	if err != nil {
		return e.fail(state, StageRevised, err)
	}
	state.SetArtifact(StageRevised, report)
	e.persist(state)

	// Fact-check, formatting, and summary outputs are additive artifacts;
	// none of them gates progression.
	if _, err := e.runStage(ctx, state, StageFactCheck, RoleFactChecker,
		"Please fact-check this report:\n\n"+report); err != nil {
		return e.fail(state, StageFactCheck, err)
	}

	formatted, err := e.runStage(ctx, state, StageFormatted, RoleFormatter,
		"Please format this report with proper structure, headings, and professional styling:\n\n"+report)
	if err != nil {
		return e.fail(state, StageFormatted, err)
	}

	summary, err := e.runStage(ctx, state, StageSummary, RoleSummarizer,
		"Please create an executive summary of this report:\n\n"+formatted)
	if err != nil {
		return e.fail(state, StageSummary, err)
	}

	path, err := e.cfg.Documents.WriteDocument(state.RunID, formatted, summary)
	if err != nil {
		return e.fail(state, StageFinalPath, err)
	}
	state.SetArtifact(StageFinalPath, path)
	state.Transition(StatusCompleted)
	e.persist(state)
	e.emit(Event{Type: EventRunCompleted, RunID: state.RunID, Data: map[string]any{"final_path": path}})

	return &RunResult{
		Status:    StatusCompleted,
		RunID:     state.RunID,
		FinalPath: path,
		Summary:   summary,
		Errors:    state.Errors,
	}, nil
}

// reviewAndRevise runs the bounded review/revise loop. Each iteration
// generates feedback for the current report; feedback containing an
// acceptance phrase ends the loop with the report unchanged, anything
// else produces a revision that becomes the new current report. When
// the iteration budget is exhausted the decision escalates to the
// approval gate; rejection there fails the run.
func (e *Engine) reviewAndRevise(ctx context.Context, state *RunState, draft string) (string, error) {
	current := draft
	var feedback string

	for i := 1; i <= e.cfg.MaxIterations; i++ {
		state.IterationCounts[LoopRevision] = i
		e.emit(Event{Type: EventRevisionIteration, RunID: state.RunID, Data: map[string]any{
			"iteration": i,
			"max":       e.cfg.MaxIterations,
		}})

		var err error
		feedback, err = e.runStage(ctx, state, StageReviewFeedback, RoleReviewer,
			"Please review this report and provide constructive feedback:\n\n"+current)
		if err != nil {
			return "", err
		}

		if ReportAccepted(feedback) {
			return current, nil
		}

		revised, err := e.runStage(ctx, state, StageRevised, RoleReviser,
			"Original Report:\n"+current+"\n\nReview Feedback:\n"+feedback+"\n\n"+
				"Please revise the report based on this feedback.")
		if err != nil {
			return "", err
		}
		current = revised
	}

	approved, err := e.requestApproval(ctx, state, CheckpointMaxRevisions, current, feedback)
	if err != nil {
		return "", err
	}
	if !approved {
		return "", ErrRejectedAfterMaxRevisions
	}
	return current, nil
}

// acceptancePhrases end the review loop when the reviewer's feedback
// contains any of them. Deliberately literal: the phrases are the
// review contract, matched case-insensitively.
var acceptancePhrases = []string{"excellent", "no major issues", "ready to publish"}

// ReportAccepted reports whether review feedback satisfies the
// acceptance test.
func ReportAccepted(feedback string) bool {
	lower := strings.ToLower(feedback)
	for _, phrase := range acceptancePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// runStage invokes the generator for one stage through the retry
// executor, stores the artifact, and persists progress.
func (e *Engine) runStage(ctx context.Context, state *RunState, stage string, role Role, userContent string) (string, error) {
	e.emit(Event{Type: EventStageStarted, RunID: state.RunID, Stage: stage})

	policy := e.cfg.Retry
	policy.OnAttempt = func(attempt int, c recovery.Classification, err error) {
		if err == nil || c.Severity == recovery.SeverityCritical || attempt > policy.MaxRetries {
			return
		}
		e.emit(Event{Type: EventStageRetrying, RunID: state.RunID, Stage: stage, Data: map[string]any{
			"attempt":  attempt,
			"category": string(c.Category),
		}})
	}

	instruction := role.InstructionFor(state.Topic)
	text, err := recovery.Run(ctx, policy, func() (string, error) {
		return e.cfg.Generator.Generate(ctx, instruction, userContent, role.MaxTokens)
	})
	if err != nil {
		e.emit(Event{Type: EventStageFailed, RunID: state.RunID, Stage: stage, Data: map[string]any{"error": err.Error()}})
		return "", err
	}

	state.SetArtifact(stage, text)
	e.persist(state)
	e.emit(Event{Type: EventStageCompleted, RunID: state.RunID, Stage: stage})
	return text, nil
}

// requestApproval consults the gate and records the decision on the run.
func (e *Engine) requestApproval(ctx context.Context, state *RunState, checkpoint, content, extra string) (bool, error) {
	e.emit(Event{Type: EventApprovalRequested, RunID: state.RunID, Data: map[string]any{"checkpoint": checkpoint}})
	approved, err := e.cfg.Approver.RequestApproval(ctx, checkpoint, content, extra)
	if err != nil {
		return false, fmt.Errorf("approval gate %q: %w", checkpoint, err)
	}
	state.RecordApproval(checkpoint, approved)
	e.emit(Event{Type: EventApprovalResolved, RunID: state.RunID, Data: map[string]any{
		"checkpoint": checkpoint,
		"approved":   approved,
	}})
	return approved, nil
}

// fail marks the run failed, persists it, and returns the failed result
// together with the error for the caller.
func (e *Engine) fail(state *RunState, stage string, err error) (*RunResult, error) {
	state.RecordError(stage, err)
	state.Transition(StatusFailed)
	e.persist(state)
	e.emit(Event{Type: EventRunFailed, RunID: state.RunID, Stage: stage, Data: map[string]any{"error": err.Error()}})
	return &RunResult{
		Status: StatusFailed,
		RunID:  state.RunID,
		Reason: err.Error(),
		Errors: state.Errors,
	}, fmt.Errorf("stage %s: %w", stage, err)
}

// persist updates the stored record. Persistence problems mid-run must
// not kill the run itself, so failures surface as warning events only.
func (e *Engine) persist(state *RunState) {
	if e.cfg.Store == nil {
		return
	}
	if err := e.cfg.Store.Update(state); err != nil {
		e.emit(Event{Type: EventPersistWarning, RunID: state.RunID, Data: map[string]any{"error": err.Error()}})
	}
}

// emit sends an event to the configured handler, stamping the time.
func (e *Engine) emit(evt Event) {
	if e.cfg.EventHandler == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	e.cfg.EventHandler(evt)
}
