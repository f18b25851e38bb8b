package sse

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/hamiltonprep/mathcoach/internal/llm"
)

func TestEncode(t *testing.T) {
	got, err := Encode(EventStatus, StatusPayload{Stage: StageThinking})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := "event: status\ndata: {\"stage\":\"thinking\"}\n\n"
	if string(got) != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}

	if _, err := Encode(EventDone, map[string]any{"bad": make(chan int)}); err == nil {
		t.Error("expected error for unencodable payload")
	}
}

func TestEncodeDonePayloads(t *testing.T) {
	hint, _ := Encode(EventDone, DonePayload{Hint: &HintPayload{Rung: "NUDGE", HintText: "Try n=1"}})
	if !strings.Contains(string(hint), `data: {"hint":{"rung":"NUDGE","hintText":"Try n=1"}}`) {
		t.Errorf("hint done = %q", hint)
	}
	attempt, _ := Encode(EventDone, DonePayload{AttemptID: "a1"})
	if !strings.Contains(string(attempt), `data: {"attemptId":"a1"}`) {
		t.Errorf("attempt done = %q", attempt)
	}
}

func TestRoundTrip(t *testing.T) {
	frame, err := Encode(EventStatus, StatusPayload{Stage: StageThinking})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	events, err := Collect(strings.NewReader(string(frame)))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Name != EventStatus {
		t.Errorf("Name = %q, want %q", events[0].Name, EventStatus)
	}
	var p StatusPayload
	if err := json.Unmarshal([]byte(events[0].Data), &p); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if p.Stage != StageThinking {
		t.Errorf("Stage = %q, want %q", p.Stage, StageThinking)
	}
}

func TestReadEvents(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Event
	}{
		{"default name", "data: x\n\n", []Event{{Name: "message", Data: "x"}}},
		{"comments skipped", ": ping\nevent: a\n: another\ndata: 1\n\n", []Event{{Name: "a", Data: "1"}}},
		{"multi-line data", "data: line1\ndata: line2\n\n", []Event{{Name: "message", Data: "line1\nline2"}}},
		{"crlf", "event: status\r\ndata: {}\r\n\r\n", []Event{{Name: "status", Data: "{}"}}},
		{"no space after colon", "event:done\ndata:{\"a\":1}\n\n", []Event{{Name: "done", Data: `{"a":1}`}}},
		{"only one space stripped", "data:  x\n\n", []Event{{Name: "message", Data: " x"}}},
		{"name resets", "event: a\ndata: 1\n\ndata: 2\n\n", []Event{{Name: "a", Data: "1"}, {Name: "message", Data: "2"}}},
		{"empty event not dispatched", "event: a\n\ndata: 2\n\n", []Event{{Name: "message", Data: "2"}}},
		{"unterminated dropped", "data: 1\n\ndata: 2", []Event{{Name: "message", Data: "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Collect() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Collect() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if err := w.Send(EventThought, ThoughtPayload{Delta: "hmm"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	h := rec.Result().Header
	wantHeaders := map[string]string{
		"Content-Type":      "text/event-stream; charset=utf-8",
		"Cache-Control":     "no-cache, no-transform",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	}
	for k, v := range wantHeaders {
		if h.Get(k) != v {
			t.Errorf("header %s = %q, want %q", k, h.Get(k), v)
		}
	}
	if !rec.Flushed {
		t.Error("writer should flush")
	}
	if rec.Body.String() != "event: thought\ndata: {\"delta\":\"hmm\"}\n\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

type noFlush struct{ http.ResponseWriter }

func TestNewWriterRequiresFlusher(t *testing.T) {
	_, err := NewWriter(noFlush{httptest.NewRecorder()})
	if !errors.Is(err, ErrStreamingUnsupported) {
		t.Errorf("error = %v, want ErrStreamingUnsupported", err)
	}
}

type recordingSender struct {
	events []string
	failAt int
}

func (s *recordingSender) Send(event string, payload any) error {
	if s.failAt > 0 && len(s.events)+1 == s.failAt {
		return errors.New("broken pipe")
	}
	b, _ := json.Marshal(payload)
	s.events = append(s.events, event+" "+string(b))
	return nil
}

func TestRelaySequence(t *testing.T) {
	s := &recordingSender{}
	r := NewRelay(s)

	r.Processing()
	r.Processing()
	r.Delta(llm.Delta{ThoughtDelta: "a"})
	r.Delta(llm.Delta{ThoughtDelta: "b"})
	r.Delta(llm.Delta{TextDelta: " "})
	r.Delta(llm.Delta{ThoughtDelta: "c"})
	r.Delta(llm.Delta{TextDelta: " "})
	r.Done(DonePayload{AttemptID: "a1"})
	r.Fail("too late")
	r.Delta(llm.Delta{ThoughtDelta: "after"})

	want := []string{
		`status {"stage":"processing"}`,
		`status {"stage":"thinking"}`,
		`thought {"delta":"a"}`,
		`thought {"delta":"b"}`,
		`status {"stage":"preparing"}`,
		`thought {"delta":"c"}`,
		`done {"attemptId":"a1"}`,
	}
	if !reflect.DeepEqual(s.events, want) {
		t.Errorf("events =\n%s\nwant\n%s", strings.Join(s.events, "\n"), strings.Join(want, "\n"))
	}
	if !r.Finished() {
		t.Error("relay should be finished after done")
	}
}

func TestRelayError(t *testing.T) {
	s := &recordingSender{}
	r := NewRelay(s)
	r.Processing()
	r.Fail("Grading generation failed")
	r.Done(DonePayload{AttemptID: "x"})

	want := []string{`status {"stage":"processing"}`, `error {"error":"Grading generation failed"}`}
	if !reflect.DeepEqual(s.events, want) {
		t.Errorf("events = %q, want %q", s.events, want)
	}
}

func TestRelayStopsAfterWriteError(t *testing.T) {
	s := &recordingSender{failAt: 2}
	r := NewRelay(s)
	r.Processing()
	r.Delta(llm.Delta{ThoughtDelta: "a"})
	r.Delta(llm.Delta{ThoughtDelta: "b"})
	r.Done(DonePayload{AttemptID: "x"})

	if r.Err() == nil {
		t.Fatal("expected write error to be recorded")
	}
	if len(s.events) != 1 {
		t.Errorf("events = %q, want only processing", s.events)
	}
}

func TestRelayOverHTTP(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	r := NewRelay(w)
	r.Processing()
	r.Delta(llm.Delta{ThoughtDelta: "x"})
	r.Delta(llm.Delta{TextDelta: " "})
	r.Done(DonePayload{Hint: &HintPayload{Rung: "KEY", HintText: "h"}})

	events, err := Collect(rec.Body)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	var names []string
	for _, e := range events {
		names = append(names, e.Name)
	}
	if strings.Join(names, ",") != "status,status,thought,status,done" {
		t.Errorf("event names = %v", names)
	}
}
