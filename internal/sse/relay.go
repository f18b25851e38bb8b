package sse

import (
	"github.com/hamiltonprep/mathcoach/internal/llm"
)

// Sender writes a single event.
type Sender interface {
	Send(event string, payload any) error
}

// Relay turns generation progress into the status/thought/done/error event sequence
// for one request. processing, thinking and preparing are each sent at most once,
// and nothing is sent after done or error. A Relay is used by a single goroutine.
type Relay struct {
	out        Sender
	processing bool
	thinking   bool
	preparing  bool
	terminal   bool
	err        error
}

// NewRelay creates a relay writing to out.
func NewRelay(out Sender) *Relay {
	return &Relay{out: out}
}

// Processing announces that the request was accepted and generation is starting.
func (r *Relay) Processing() {
	if r.processing {
		return
	}
	r.processing = true
	r.send(EventStatus, StatusPayload{Stage: StageProcessing})
}

// Delta forwards a generation delta. It has the shape of an llm delta sink.
func (r *Relay) Delta(d llm.Delta) {
	if d.ThoughtDelta != "" {
		if !r.thinking {
			r.thinking = true
			r.send(EventStatus, StatusPayload{Stage: StageThinking})
		}
		r.send(EventThought, ThoughtPayload{Delta: d.ThoughtDelta})
	}
	if d.TextDelta != "" && !r.preparing {
		r.preparing = true
		r.send(EventStatus, StatusPayload{Stage: StagePreparing})
	}
}

// Done sends the terminal done event.
func (r *Relay) Done(p DonePayload) {
	r.send(EventDone, p)
	r.terminal = true
}

// Fail sends the terminal error event with a user-facing message.
func (r *Relay) Fail(message string) {
	r.send(EventError, ErrorPayload{Error: message})
	r.terminal = true
}

// Finished reports whether a terminal event has been sent.
func (r *Relay) Finished() bool { return r.terminal }

// Err returns the first write error, typically a disconnected client.
func (r *Relay) Err() error { return r.err }

func (r *Relay) send(event string, payload any) {
	if r.terminal || r.err != nil {
		return
	}
	if err := r.out.Send(event, payload); err != nil {
		r.err = err
	}
}
