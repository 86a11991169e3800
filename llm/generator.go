// ABOUTME: Generator is the text-generation seam between the pipeline and any LLM provider.
// ABOUTME: Ships scripted and recording implementations for deterministic tests.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// Generator produces text for one role-scoped request. Implementations
// must be safe for use from a single goroutine per call; the pipeline
// never shares an in-flight call.
type Generator interface {
	Generate(ctx context.Context, roleInstruction, userContent string, maxTokens int) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, roleInstruction, userContent string, maxTokens int) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, roleInstruction, userContent string, maxTokens int) (string, error) {
	return f(ctx, roleInstruction, userContent, maxTokens)
}

type scriptEntry struct {
	text string
	err  error
}

// ScriptedGenerator replays a fixed sequence of responses in FIFO order.
// Exhausting the script is an error: a test that generates more than it
// scripted has a bug.
type ScriptedGenerator struct {
	mu      sync.Mutex
	entries []scriptEntry
}

// NewScriptedGenerator creates a scripted generator preloaded with the
// given responses.
func NewScriptedGenerator(responses ...string) *ScriptedGenerator {
	g := &ScriptedGenerator{}
	for _, r := range responses {
		g.Enqueue(r)
	}
	return g
}

// Enqueue appends a successful response to the script.
func (g *ScriptedGenerator) Enqueue(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, scriptEntry{text: text})
}

// EnqueueError appends a failing response to the script.
func (g *ScriptedGenerator) EnqueueError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, scriptEntry{err: err})
}

func (g *ScriptedGenerator) Generate(ctx context.Context, roleInstruction, userContent string, maxTokens int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.entries) == 0 {
		return "", fmt.Errorf("scripted generator exhausted (unexpected request: %.60q)", userContent)
	}
	next := g.entries[0]
	g.entries = g.entries[1:]
	if next.err != nil {
		return "", next.err
	}
	return next.text, nil
}

// Call is one recorded Generate invocation.
type Call struct {
	RoleInstruction string
	UserContent     string
	MaxTokens       int
}

// RecordingGenerator wraps another Generator and captures every call.
type RecordingGenerator struct {
	inner Generator

	mu    sync.Mutex
	calls []Call
}

// NewRecordingGenerator wraps inner with call recording.
func NewRecordingGenerator(inner Generator) *RecordingGenerator {
	return &RecordingGenerator{inner: inner}
}

func (g *RecordingGenerator) Generate(ctx context.Context, roleInstruction, userContent string, maxTokens int) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, Call{
		RoleInstruction: roleInstruction,
		UserContent:     userContent,
		MaxTokens:       maxTokens,
	})
	g.mu.Unlock()
	return g.inner.Generate(ctx, roleInstruction, userContent, maxTokens)
}

// Calls returns a copy of the recorded calls in order.
func (g *RecordingGenerator) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}
