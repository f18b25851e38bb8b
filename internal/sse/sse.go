// Package sse writes and reads the Server-Sent Events stream used by the hint
// and grading endpoints.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Event names.
const (
	EventStatus  = "status"
	EventThought = "thought"
	EventDone    = "done"
	EventError   = "error"
)

// Status stages.
const (
	StageProcessing = "processing"
	StageThinking   = "thinking"
	StagePreparing  = "preparing"
)

// StatusPayload is the data of a status event.
type StatusPayload struct {
	Stage string `json:"stage"`
}

// ThoughtPayload is the data of a thought event.
type ThoughtPayload struct {
	Delta string `json:"delta"`
}

// HintPayload is the hint carried by a done event on the hint path.
type HintPayload struct {
	Rung     string `json:"rung"`
	HintText string `json:"hintText"`
}

// DonePayload is the data of a done event. Exactly one field is set.
type DonePayload struct {
	Hint      *HintPayload `json:"hint,omitempty"`
	AttemptID string       `json:"attemptId,omitempty"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Encode frames one event as "event: <name>\ndata: <json>\n\n".
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	var buf bytes.Buffer
	buf.Grow(len(event) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// SetHeaders sets the response headers for an event stream, including the one that
// disables proxy buffering.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Writer sends events on an HTTP response, flushing after each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets stream headers and commits the response status.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one event and flushes it.
func (sw *Writer) Send(event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	if _, err := sw.w.Write(frame); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	sw.flusher.Flush()
	return nil
}
