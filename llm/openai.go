// ABOUTME: OpenAI Chat Completions implementation of the Generator interface with base URL support.
// ABOUTME: Works against any OpenAI-compatible provider (OpenRouter, Cerebras, local gateways).
package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultModel = "gpt-4.1-mini"

// OpenAIGenerator is a Generator backed by the OpenAI Chat Completions
// API via /v1/chat/completions, the endpoint supported by all
// OpenAI-compatible providers.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator for the given API key and model.
// An empty model falls back to the default; a non-empty baseURL points
// the client at an OpenAI-compatible provider.
func NewOpenAIGenerator(apiKey, model, baseURL string) *OpenAIGenerator {
	if model == "" {
		model = defaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Generate sends the role instruction as the system message and the user
// content as a single user message, returning the first choice's text.
// SDK errors pass through unwrapped so their status codes and messages
// stay visible to the error classifier.
func (g *OpenAIGenerator) Generate(ctx context.Context, roleInstruction, userContent string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(roleInstruction),
			openai.UserMessage(userContent),
		},
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("api returned no choices for model %s", g.model)
	}
	return resp.Choices[0].Message.Content, nil
}
