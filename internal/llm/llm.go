package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/hamiltonprep/mathcoach/internal/model"
)

// Channel tags a streamed chunk as model reasoning or final answer text.
type Channel int

const (
	ChannelResponse Channel = iota
	ChannelThought
)

// Chunk is one incremental piece of a streamed generation.
type Chunk struct {
	Channel Channel
	Text    string
}

// Request is a single streaming generation call.
type Request struct {
	System string
	Prompt string
	// JSON asks the backend for JSON-typed output where it supports it.
	JSON bool
}

// Stream yields chunks until Recv returns io.EOF. Close aborts the call and is safe to call more than once.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Backend opens streaming generation calls against one provider.
type Backend interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Delta is forwarded to callers while a generation streams. Exactly one field is set.
type Delta struct {
	ThoughtDelta string
	TextDelta    string
}

// HintParams are the inputs for one hint.
type HintParams struct {
	Problem         model.Problem
	AttemptText     string
	Rung            model.HintRung
	Persona         model.Persona
	StuckConfidence *int
	SuggestedMoves  []model.Move
	OnDelta         func(Delta)
}

// GradeParams are the inputs for grading a submitted attempt.
type GradeParams struct {
	Problem         model.Problem
	AttemptText     string
	Claims          []model.Claim
	StartConfidence int
	FinalConfidence int
	HintsUsed       []model.HintRung
	OnDelta         func(Delta)
}

// Tutor produces hints and grades for attempts.
type Tutor interface {
	GenerateHint(ctx context.Context, p HintParams) (string, error)
	GradeAttempt(ctx context.Context, p GradeParams) (model.FeedbackResult, error)
}

// Config is passed to backend factories.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// BackendFactory creates a backend from configuration.
type BackendFactory func(cfg Config) (Backend, error)

var backends = make(map[string]BackendFactory)

// RegisterBackend registers a backend factory under name. Backends register themselves in init.
func RegisterBackend(name string, factory BackendFactory) {
	backends[name] = factory
}

// NewBackend creates the backend registered under name.
func NewBackend(name string, cfg Config) (Backend, error) {
	factory, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
	return factory(cfg)
}

// Backends lists registered backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
