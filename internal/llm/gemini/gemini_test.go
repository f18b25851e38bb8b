package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/hamiltonprep/mathcoach/internal/llm"
)

func TestChunksFrom(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "considering parity", Thought: true},
				{Text: ""},
				{Text: `{"hintText":"x"}`},
			}},
		}},
	}
	got := chunksFrom(resp)
	want := []llm.Chunk{
		{Channel: llm.ChannelThought, Text: "considering parity"},
		{Channel: llm.ChannelResponse, Text: `{"hintText":"x"}`},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if chunksFrom(nil) != nil || chunksFrom(&genai.GenerateContentResponse{}) != nil {
		t.Error("empty responses should produce no chunks")
	}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), llm.Config{}, nil)
	var provErr *llm.ProviderError
	if !errors.As(err, &provErr) || provErr.Code != llm.ErrCodeAPIKey {
		t.Errorf("error = %v, want invalid_api_key provider error", err)
	}
}

func TestStream(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/test-model:streamGenerateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		parts := []map[string]any{
			{"text": "thinking about sums", "thought": true},
			{"text": `{"hintText": "Write each odd number as 2k+1."}`},
		}
		for _, p := range parts {
			chunk := map[string]any{
				"candidates": []map[string]any{{"content": map[string]any{"role": "model", "parts": []map[string]any{p}}}},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
	}))
	defer srv.Close()

	b, err := New(context.Background(), llm.Config{APIKey: "test", Model: "test-model", BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s, err := b.Stream(context.Background(), llm.Request{System: "sys", Prompt: "hint please", JSON: true})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer s.Close()

	var got []llm.Chunk
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		got = append(got, c)
	}
	if len(got) != 2 || got[0].Channel != llm.ChannelThought || got[1].Channel != llm.ChannelResponse {
		t.Fatalf("chunks = %+v", got)
	}

	cfg, _ := gotBody["generationConfig"].(map[string]any)
	if cfg["responseMimeType"] != "application/json" {
		t.Errorf("generationConfig = %v, want JSON mime type", cfg)
	}
	if _, ok := gotBody["systemInstruction"]; !ok {
		t.Error("request should carry the system instruction")
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	b, err := New(context.Background(), llm.Config{APIKey: "test", Model: "test-model", BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s, _ := b.Stream(context.Background(), llm.Request{Prompt: "p"})
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv() after Close error = %v, want io.EOF", err)
	}
}
