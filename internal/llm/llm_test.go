package llm

import (
	"context"
	"errors"
	"io"
	"sync"
)

// scriptedStream replays a fixed list of chunks, then returns end.
type scriptedStream struct {
	chunks []Chunk
	end    error
	pos    int
	closed bool
}

func (s *scriptedStream) Recv() (Chunk, error) {
	if s.pos >= len(s.chunks) {
		if s.end != nil {
			return Chunk{}, s.end
		}
		return Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

// stubBackend serves one script per call and records every request it receives.
type stubBackend struct {
	mu       sync.Mutex
	scripts  [][]Chunk
	openErr  error
	requests []Request
	streams  []*scriptedStream
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Stream(_ context.Context, req Request) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.openErr != nil {
		return nil, b.openErr
	}
	if len(b.scripts) == 0 {
		return nil, errors.New("stub: no script left")
	}
	s := &scriptedStream{chunks: b.scripts[0]}
	b.scripts = b.scripts[1:]
	b.streams = append(b.streams, s)
	return s, nil
}

func response(parts ...string) []Chunk {
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{Channel: ChannelResponse, Text: p}
	}
	return chunks
}

func thoughts(parts ...string) []Chunk {
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{Channel: ChannelThought, Text: p}
	}
	return chunks
}

func joinChunks(groups ...[]Chunk) []Chunk {
	var out []Chunk
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
