package llm

import (
	"fmt"
	"log/slog"
)

// Failure kinds recorded per attempt.
const (
	KindInvalidJSON   = "invalid_json"
	KindInvalidSchema = "invalid_schema"
)

// Attempt records why one generation attempt was rejected.
type Attempt struct {
	Number  int
	Kind    string
	RawText string
	Err     error
}

// GenerationError is returned when every attempt produced unusable output.
// It carries raw model text and must not be shown to end users.
type GenerationError struct {
	Stage    string
	Attempts []Attempt
}

func (e *GenerationError) Error() string {
	kind := "unknown"
	if n := len(e.Attempts); n > 0 {
		kind = e.Attempts[n-1].Kind
	}
	return fmt.Sprintf("failed to generate valid JSON (%s, %s) after %d attempts", e.Stage, kind, len(e.Attempts))
}

// Unwrap returns the error of the last attempt.
func (e *GenerationError) Unwrap() error {
	if n := len(e.Attempts); n > 0 {
		return e.Attempts[n-1].Err
	}
	return nil
}

// LogValue implements slog.LogValuer with per-attempt raw text previews.
func (e *GenerationError) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("stage", e.Stage)}
	for _, a := range e.Attempts {
		errText := ""
		if a.Err != nil {
			errText = a.Err.Error()
		}
		attrs = append(attrs, slog.Group(fmt.Sprintf("attempt_%d", a.Number),
			"kind", a.Kind,
			"error", errText,
			"raw_preview", preview(a.RawText, rawPreviewLen),
		))
	}
	return slog.GroupValue(attrs...)
}

// ProviderError wraps a transport failure from a backend. These are not retried.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider error codes.
const (
	ErrCodeAPIKey      = "invalid_api_key"
	ErrCodeRateLimit   = "rate_limit_exceeded"
	ErrCodeServiceDown = "service_unavailable"
	ErrCodeTimeout     = "timeout"
	ErrCodeStream      = "stream_failed"
)

const rawPreviewLen = 800

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
