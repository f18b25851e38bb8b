package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no JSON value can be found in model output.
var ErrNoJSON = errors.New("no JSON value found in model output")

// ExtractJSON pulls a single JSON value out of model output that may be wrapped
// in markdown code fences or surrounded by prose. Output that is already valid JSON
// is returned as is; otherwise the first position where a complete value decodes wins.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, ErrNoJSON
	}
	if json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	if v, ok := firstValue(s); ok {
		return v, nil
	}
	if inner := stripCodeFences(s); inner != "" && inner != s {
		if json.Valid([]byte(inner)) {
			return []byte(inner), nil
		}
		if v, ok := firstValue(inner); ok {
			return v, nil
		}
	}
	return nil, ErrNoJSON
}

// firstValue tries every '{' or '[' in s in order and returns the first complete
// JSON value that decodes from it, ignoring whatever trails it.
func firstValue(s string) ([]byte, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&raw); err == nil {
			return bytes.TrimSpace(raw), true
		}
	}
	return nil, false
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if open := strings.Index(s, "```"); open >= 0 {
		body := s[open+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	return s
}
