// Package openai streams generations from any OpenAI-compatible chat completions API.
package openai

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hamiltonprep/mathcoach/internal/llm"
)

const providerName = "openai"

func init() {
	llm.RegisterBackend(providerName, func(cfg llm.Config) (llm.Backend, error) {
		return New(cfg), nil
	})
}

// Backend wraps an OpenAI-compatible API client.
type Backend struct {
	api   *openai.Client
	model string
}

// New creates a backend. An empty BaseURL uses the OpenAI default.
func New(cfg llm.Config) *Backend {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Backend{
		api:   openai.NewClientWithConfig(config),
		model: cfg.Model,
	}
}

// Name implements llm.Backend.
func (b *Backend) Name() string { return providerName }

// Stream implements llm.Backend. Reasoning content, when the server sends it, is
// surfaced on the thought channel.
func (b *Backend) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	creq := openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    msgs,
		Stream:      true,
		Temperature: 0.2,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	s, err := b.api.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, providerError("failed to open completion stream", err)
	}
	return &stream{s: s}, nil
}

type stream struct {
	s       *openai.ChatCompletionStream
	pending []llm.Chunk
	closed  bool
}

func (st *stream) Recv() (llm.Chunk, error) {
	for len(st.pending) == 0 {
		resp, err := st.s.Recv()
		if err != nil {
			return llm.Chunk{}, err
		}
		st.pending = chunksFrom(resp)
	}
	c := st.pending[0]
	st.pending = st.pending[1:]
	return c, nil
}

func (st *stream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	return st.s.Close()
}

func chunksFrom(resp openai.ChatCompletionStreamResponse) []llm.Chunk {
	var chunks []llm.Chunk
	for _, choice := range resp.Choices {
		if choice.Delta.ReasoningContent != "" {
			chunks = append(chunks, llm.Chunk{Channel: llm.ChannelThought, Text: choice.Delta.ReasoningContent})
		}
		if choice.Delta.Content != "" {
			chunks = append(chunks, llm.Chunk{Channel: llm.ChannelResponse, Text: choice.Delta.Content})
		}
	}
	return chunks
}

func providerError(msg string, err error) *llm.ProviderError {
	code := llm.ErrCodeServiceDown
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = codeForStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		code = codeForStatus(reqErr.HTTPStatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		code = llm.ErrCodeTimeout
	}
	return &llm.ProviderError{Provider: providerName, Code: code, Message: msg, Err: err}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.ErrCodeAPIKey
	case http.StatusTooManyRequests:
		return llm.ErrCodeRateLimit
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return llm.ErrCodeTimeout
	}
	return llm.ErrCodeServiceDown
}
