package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/hamiltonprep/mathcoach/internal/metrics"
)

const retrySuffix = "\n\nIMPORTANT: Output MUST be a single valid JSON object matching the requested schema.\n" +
	"Do not wrap it in markdown. Do not include any commentary."

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("register notblank validation: %v", err))
	}
	return v
}

type options struct {
	maxAttempts int
	onDelta     func(Delta)
	stage       string
}

// Option configures GenerateStructured.
type Option func(*options)

// WithMaxAttempts sets the number of attempts. Values below 1 are treated as 1.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithDeltaSink receives thought deltas and the response-started marker.
func WithDeltaSink(fn func(Delta)) Option {
	return func(o *options) { o.onDelta = fn }
}

// WithStage labels the call in errors, logs and metrics.
func WithStage(stage string) Option {
	return func(o *options) { o.stage = stage }
}

// GenerateStructured streams a generation from backend and decodes the answer into T,
// validating it with the struct's validate tags. Output that is not valid JSON or fails
// validation is retried with a stricter instruction, up to the attempt limit. Backend
// errors are returned at once as *ProviderError.
func GenerateStructured[T any](ctx context.Context, backend Backend, system, prompt string, opts ...Option) (T, error) {
	o := options{maxAttempts: 2, stage: "generate"}
	for _, fn := range opts {
		fn(&o)
	}
	o.maxAttempts = max(o.maxAttempts, 1)

	start := time.Now()
	defer func() { metrics.ObserveDuration(o.stage, time.Since(start)) }()

	var zero T
	var attempts []Attempt
	for n := 1; n <= o.maxAttempts; n++ {
		p := prompt
		if n > 1 {
			p += retrySuffix
		}

		raw, err := streamAttempt(ctx, backend, Request{System: system, Prompt: p, JSON: true}, o.onDelta)
		if err != nil {
			metrics.ObserveAttempt(o.stage, metrics.OutcomeProviderError)
			metrics.ObserveFailure(o.stage, metrics.OutcomeProviderError)
			return zero, providerError(backend.Name(), err)
		}

		v, kind, err := decode[T](raw)
		if err == nil {
			metrics.ObserveAttempt(o.stage, metrics.OutcomeSuccess)
			return v, nil
		}
		metrics.ObserveAttempt(o.stage, kind)
		attempts = append(attempts, Attempt{Number: n, Kind: kind, RawText: raw, Err: err})
	}

	metrics.ObserveFailure(o.stage, attempts[len(attempts)-1].Kind)
	return zero, &GenerationError{Stage: o.stage, Attempts: attempts}
}

// streamAttempt runs one streaming call and returns the accumulated response text.
// The stream is always closed, which aborts the call if it is still in flight.
func streamAttempt(ctx context.Context, backend Backend, req Request, onDelta func(Delta)) (string, error) {
	stream, err := backend.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var text strings.Builder
	started := false
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return text.String(), nil
		}
		if err != nil {
			return "", err
		}

		switch chunk.Channel {
		case ChannelThought:
			if chunk.Text != "" && onDelta != nil {
				onDelta(Delta{ThoughtDelta: chunk.Text})
			}
		case ChannelResponse:
			if !started {
				started = true
				if onDelta != nil {
					onDelta(Delta{TextDelta: " "})
				}
			}
			text.WriteString(chunk.Text)
		}
	}
}

func decode[T any](raw string) (T, string, error) {
	var v T
	data, err := ExtractJSON(raw)
	if err != nil {
		return v, KindInvalidJSON, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, KindInvalidJSON, err
	}
	if err := validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return v, KindInvalidSchema, err
		}
	}
	return v, "", nil
}

func providerError(name string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	code := ErrCodeStream
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		code = ErrCodeTimeout
	}
	return &ProviderError{Provider: name, Code: code, Message: "generation stream failed", Err: err}
}
