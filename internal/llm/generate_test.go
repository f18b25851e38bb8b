package llm

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type answer struct {
	Value string `json:"value" validate:"required"`
	Count int    `json:"count" validate:"min=1"`
}

func TestGenerateStructuredRetry(t *testing.T) {
	t.Run("invalid then valid", func(t *testing.T) {
		b := &stubBackend{scripts: [][]Chunk{
			response(`{"value": "x", "count":`),
			response(`{"value": "ok", "count": 2}`),
		}}
		got, err := GenerateStructured[answer](context.Background(), b, "sys", "prompt")
		if err != nil {
			t.Fatalf("GenerateStructured() error = %v", err)
		}
		if got.Value != "ok" || got.Count != 2 {
			t.Errorf("got %+v, want value from second attempt", got)
		}
		if len(b.requests) != 2 {
			t.Fatalf("backend called %d times, want 2", len(b.requests))
		}
		if b.requests[0].Prompt != "prompt" {
			t.Errorf("first prompt = %q, want unchanged", b.requests[0].Prompt)
		}
		if !strings.HasPrefix(b.requests[1].Prompt, "prompt") || !strings.Contains(b.requests[1].Prompt, "MUST be a single valid JSON object") {
			t.Errorf("second prompt not sharpened: %q", b.requests[1].Prompt)
		}
		for i, r := range b.requests {
			if !r.JSON || r.System != "sys" {
				t.Errorf("request %d = %+v, want JSON output and system prompt", i, r)
			}
		}
		for i, s := range b.streams {
			if !s.closed {
				t.Errorf("stream %d was not closed", i)
			}
		}
	})

	t.Run("always invalid", func(t *testing.T) {
		b := &stubBackend{scripts: [][]Chunk{
			response("not json"),
			response(`{"value": "", "count": 1}`),
			response(`{"value": "late", "count": 1}`),
		}}
		_, err := GenerateStructured[answer](context.Background(), b, "sys", "prompt", WithStage("grade"))
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("error = %v, want *GenerationError", err)
		}
		if len(b.requests) != 2 {
			t.Errorf("backend called %d times, want 2", len(b.requests))
		}
		if len(genErr.Attempts) != 2 {
			t.Fatalf("recorded %d attempts, want 2", len(genErr.Attempts))
		}
		if genErr.Stage != "grade" {
			t.Errorf("Stage = %q, want grade", genErr.Stage)
		}
		first, second := genErr.Attempts[0], genErr.Attempts[1]
		if first.Number != 1 || first.Kind != KindInvalidJSON || first.RawText != "not json" || first.Err == nil {
			t.Errorf("attempt 1 = %+v", first)
		}
		if second.Number != 2 || second.Kind != KindInvalidSchema || second.Err == nil {
			t.Errorf("attempt 2 = %+v", second)
		}
		if !strings.Contains(err.Error(), "after 2 attempts") {
			t.Errorf("error message = %q", err.Error())
		}
	})

	t.Run("custom attempt limit", func(t *testing.T) {
		b := &stubBackend{scripts: [][]Chunk{response("a"), response("b"), response("c"), response("d")}}
		_, err := GenerateStructured[answer](context.Background(), b, "", "p", WithMaxAttempts(3))
		var genErr *GenerationError
		if !errors.As(err, &genErr) || len(genErr.Attempts) != 3 || len(b.requests) != 3 {
			t.Errorf("err = %v, requests = %d, want 3 recorded attempts", err, len(b.requests))
		}
	})

	t.Run("zero attempts means one", func(t *testing.T) {
		b := &stubBackend{scripts: [][]Chunk{response("a"), response("b")}}
		_, _ = GenerateStructured[answer](context.Background(), b, "", "p", WithMaxAttempts(0))
		if len(b.requests) != 1 {
			t.Errorf("backend called %d times, want 1", len(b.requests))
		}
	})
}

func TestGenerateStructuredProviderErrors(t *testing.T) {
	t.Run("open failure is not retried", func(t *testing.T) {
		b := &stubBackend{openErr: errors.New("connection refused")}
		_, err := GenerateStructured[answer](context.Background(), b, "", "p")
		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("error = %v, want *ProviderError", err)
		}
		if provErr.Provider != "stub" {
			t.Errorf("Provider = %q", provErr.Provider)
		}
		if len(b.requests) != 1 {
			t.Errorf("backend called %d times, want 1", len(b.requests))
		}
	})

	t.Run("mid-stream failure is not retried", func(t *testing.T) {
		b := &failingBackend{err: context.DeadlineExceeded}
		_, err := GenerateStructured[answer](context.Background(), b, "", "p")
		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("error = %v, want *ProviderError", err)
		}
		if provErr.Code != ErrCodeTimeout {
			t.Errorf("Code = %q, want %q", provErr.Code, ErrCodeTimeout)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Error("provider error should unwrap to the cause")
		}
		if b.calls != 1 {
			t.Errorf("backend called %d times, want 1", b.calls)
		}
	})
}

type failingBackend struct {
	err   error
	calls int
}

func (b *failingBackend) Name() string { return "failing" }

func (b *failingBackend) Stream(context.Context, Request) (Stream, error) {
	b.calls++
	return &scriptedStream{chunks: response(`{"value":`), end: b.err}, nil
}

func TestGenerateStructuredDeltas(t *testing.T) {
	t.Run("thoughts then single sentinel", func(t *testing.T) {
		b := &stubBackend{scripts: [][]Chunk{
			joinChunks(thoughts("a", "b"), response(splitEvery(`{"value": "v", "count": 1}`, 4)...)),
		}}
		var got []Delta
		_, err := GenerateStructured[answer](context.Background(), b, "", "p", WithDeltaSink(func(d Delta) {
			got = append(got, d)
		}))
		if err != nil {
			t.Fatalf("GenerateStructured() error = %v", err)
		}
		want := []Delta{{ThoughtDelta: "a"}, {ThoughtDelta: "b"}, {TextDelta: " "}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("deltas = %+v, want %+v", got, want)
		}
	})

	t.Run("sentinel once per attempt", func(t *testing.T) {
		b := &stubBackend{scripts: [][]Chunk{
			joinChunks(thoughts("x"), response("bad", "output")),
			joinChunks(thoughts("y"), response(`{"value": "v",`, ` "count": 3}`)),
		}}
		var got []Delta
		_, err := GenerateStructured[answer](context.Background(), b, "", "p", WithDeltaSink(func(d Delta) {
			got = append(got, d)
		}))
		if err != nil {
			t.Fatalf("GenerateStructured() error = %v", err)
		}
		want := []Delta{{ThoughtDelta: "x"}, {TextDelta: " "}, {ThoughtDelta: "y"}, {TextDelta: " "}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("deltas = %+v, want %+v", got, want)
		}
	})

	t.Run("empty thoughts skipped", func(t *testing.T) {
		b := &stubBackend{scripts: [][]Chunk{
			joinChunks(thoughts("", "z"), response(`{"value": "v", "count": 1}`)),
		}}
		var got []Delta
		_, _ = GenerateStructured[answer](context.Background(), b, "", "p", WithDeltaSink(func(d Delta) {
			got = append(got, d)
		}))
		want := []Delta{{ThoughtDelta: "z"}, {TextDelta: " "}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("deltas = %+v, want %+v", got, want)
		}
	})

	t.Run("nil sink", func(t *testing.T) {
		b := &stubBackend{scripts: [][]Chunk{
			joinChunks(thoughts("a"), response(`{"value": "v", "count": 1}`)),
		}}
		if _, err := GenerateStructured[answer](context.Background(), b, "", "p"); err != nil {
			t.Fatalf("GenerateStructured() error = %v", err)
		}
	})
}

func TestGenerationErrorLogValue(t *testing.T) {
	err := &GenerationError{Stage: "hint", Attempts: []Attempt{
		{Number: 1, Kind: KindInvalidJSON, RawText: strings.Repeat("x", 2000), Err: ErrNoJSON},
	}}
	v := err.LogValue()
	group := v.Group()
	if len(group) != 2 {
		t.Fatalf("log value has %d attrs, want 2", len(group))
	}
	for _, a := range group[1].Value.Group() {
		if a.Key == "raw_preview" && len(a.Value.String()) != rawPreviewLen {
			t.Errorf("raw preview length = %d, want %d", len(a.Value.String()), rawPreviewLen)
		}
	}
	if !errors.Is(err, ErrNoJSON) {
		t.Error("GenerationError should unwrap to the last attempt error")
	}
}

func TestValidatorNotBlank(t *testing.T) {
	tests := []struct {
		text  string
		valid bool
	}{
		{"try parity", true},
		{"", false},
		{"  \n\t", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			err := validate.Struct(HintOutput{HintText: tt.text})
			if (err == nil) != tt.valid {
				t.Errorf("validate(%q) error = %v, want valid %v", tt.text, err, tt.valid)
			}
		})
	}
}
