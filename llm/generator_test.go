// ABOUTME: Tests for the Generator test doubles used throughout the pipeline tests.
// ABOUTME: Covers FIFO scripting, error entries, exhaustion, and call recording.
package llm

import (
	"context"
	"errors"
	"testing"
)

func TestScriptedGeneratorFIFO(t *testing.T) {
	g := NewScriptedGenerator("first", "second")

	got, err := g.Generate(context.Background(), "role", "content", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "first" {
		t.Errorf("expected %q, got %q", "first", got)
	}

	got, _ = g.Generate(context.Background(), "role", "content", 100)
	if got != "second" {
		t.Errorf("expected %q, got %q", "second", got)
	}
}

func TestScriptedGeneratorErrorEntry(t *testing.T) {
	g := NewScriptedGenerator()
	scriptErr := errors.New("connection refused")
	g.EnqueueError(scriptErr)
	g.Enqueue("recovered")

	_, err := g.Generate(context.Background(), "role", "content", 100)
	if !errors.Is(err, scriptErr) {
		t.Errorf("expected scripted error, got %v", err)
	}

	got, err := g.Generate(context.Background(), "role", "content", 100)
	if err != nil || got != "recovered" {
		t.Errorf("expected recovered response, got %q, %v", got, err)
	}
}

func TestScriptedGeneratorExhaustion(t *testing.T) {
	g := NewScriptedGenerator()
	if _, err := g.Generate(context.Background(), "role", "content", 100); err == nil {
		t.Error("expected error from exhausted script")
	}
}

func TestRecordingGeneratorCapturesCalls(t *testing.T) {
	inner := NewScriptedGenerator("out")
	g := NewRecordingGenerator(inner)

	_, err := g.Generate(context.Background(), "you are a reviewer", "the draft", 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := g.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(calls))
	}
	if calls[0].RoleInstruction != "you are a reviewer" || calls[0].UserContent != "the draft" || calls[0].MaxTokens != 2000 {
		t.Errorf("recorded call does not match: %+v", calls[0])
	}
}
