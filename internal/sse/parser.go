package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	Name string
	Data string
}

const maxLineSize = 1 << 20

// ReadEvents parses an event stream and calls fn for each complete event. Comment
// lines are skipped, multi-line data is joined with "\n", CRLF line endings are
// accepted and events without an event field are named "message". An event not
// terminated by a blank line before EOF is dropped.
func ReadEvents(r io.Reader, fn func(Event)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var name string
	var data strings.Builder
	hasData := false
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if hasData {
				ev := Event{Name: name, Data: strings.TrimSuffix(data.String(), "\n")}
				if ev.Name == "" {
					ev.Name = "message"
				}
				fn(ev)
			}
			name = ""
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		}
	}
	return sc.Err()
}

// Collect reads every event from r.
func Collect(r io.Reader) ([]Event, error) {
	var events []Event
	err := ReadEvents(r, func(e Event) { events = append(events, e) })
	return events, err
}
