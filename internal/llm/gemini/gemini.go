// Package gemini streams generations from the Gemini API, exposing thought summaries.
package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"

	"google.golang.org/genai"

	"github.com/hamiltonprep/mathcoach/internal/llm"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"
)

func init() {
	llm.RegisterBackend(providerName, func(cfg llm.Config) (llm.Backend, error) {
		return New(context.Background(), cfg, nil)
	})
}

// Backend wraps a genai client.
type Backend struct {
	client *genai.Client
	model  string
}

// New creates a Gemini backend. httpClient may be nil.
func New(ctx context.Context, cfg llm.Config, httpClient *http.Client) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, &llm.ProviderError{Provider: providerName, Code: llm.ErrCodeAPIKey, Message: "API key is required"}
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL, APIVersion: "v1beta"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: providerName,
			Code:     llm.ErrCodeAPIKey,
			Message:  "failed to create Gemini client",
			Err:      err,
		}
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Backend{client: client, model: model}, nil
}

// Name implements llm.Backend.
func (b *Backend) Name() string { return providerName }

// Stream implements llm.Backend.
func (b *Backend) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{IncludeThoughts: true},
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	ctx, cancel := context.WithCancel(ctx)
	seq := b.client.Models.GenerateContentStream(ctx, b.model, genai.Text(req.Prompt), config)
	next, stop := iter.Pull2(seq)
	return &stream{next: next, stop: stop, cancel: cancel}, nil
}

type stream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	cancel  context.CancelFunc
	pending []llm.Chunk
	done    bool
}

func (s *stream) Recv() (llm.Chunk, error) {
	for len(s.pending) == 0 {
		if s.done {
			return llm.Chunk{}, io.EOF
		}
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			continue
		}
		if err != nil {
			return llm.Chunk{}, providerError(err)
		}
		s.pending = chunksFrom(resp)
	}
	c := s.pending[0]
	s.pending = s.pending[1:]
	return c, nil
}

func (s *stream) Close() error {
	s.done = true
	s.cancel()
	s.stop()
	return nil
}

func chunksFrom(resp *genai.GenerateContentResponse) []llm.Chunk {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return nil
	}
	var chunks []llm.Chunk
	for _, part := range cand.Content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		ch := llm.ChannelResponse
		if part.Thought {
			ch = llm.ChannelThought
		}
		chunks = append(chunks, llm.Chunk{Channel: ch, Text: part.Text})
	}
	return chunks
}

func providerError(err error) *llm.ProviderError {
	code := llm.ErrCodeServiceDown
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	status := 0
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Code
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Code
	case errors.Is(err, context.DeadlineExceeded):
		code = llm.ErrCodeTimeout
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = llm.ErrCodeAPIKey
	case http.StatusTooManyRequests:
		code = llm.ErrCodeRateLimit
	}
	return &llm.ProviderError{Provider: providerName, Code: code, Message: "generation stream failed", Err: err}
}
