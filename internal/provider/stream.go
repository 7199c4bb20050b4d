package provider

import (
	"context"
	"sync"

	"github.com/riyak972/capstone-chat/internal/domain"
)

// Stream is a single-use, finite sequence of chunks produced by one adapter call.
//
// The sequence always begins with a start event and ends with exactly one
// terminal event (end or error), after which the channel is closed. Start and
// terminal events emitted by the adapter itself are normalized away.
type Stream struct {
	chunks chan domain.Chunk
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	resp *domain.ChatResponse
	err  error
}

// Open starts a streaming call to a in the background.
func Open(ctx context.Context, a Adapter, req *Request) *Stream {
	s := &Stream{
		chunks: make(chan domain.Chunk, 16),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(ctx, a, req)
	return s
}

// Chunks returns the chunk channel. It is closed after the terminal event.
func (s *Stream) Chunks() <-chan domain.Chunk { return s.chunks }

// Wait blocks until the call finishes and returns its outcome.
func (s *Stream) Wait() (*domain.ChatResponse, error) {
	<-s.done
	return s.resp, s.err
}

// Close abandons the stream. Undelivered chunks are discarded.
func (s *Stream) Close() {
	s.once.Do(func() { close(s.quit) })
}

func (s *Stream) run(ctx context.Context, a Adapter, req *Request) {
	defer close(s.done)
	defer close(s.chunks)

	started := false
	start := func() {
		if !started {
			started = true
			s.send(domain.EventChunk(domain.EventStart, nil))
		}
	}
	emit := func(c domain.Chunk) {
		start()
		if c.IsEvent(domain.EventStart) || c.Terminal() {
			return
		}
		s.send(c)
	}

	resp, err := a.Chat(ctx, req, emit)
	start()
	if err != nil {
		s.err = err
		s.send(domain.EventChunk(domain.EventError, domain.ErrorEventData{
			Code:    string(domain.CodeOf(err)),
			Message: domain.MessageOf(err),
		}))
		return
	}
	s.resp = resp
	s.send(domain.EventChunk(domain.EventEnd, domain.EndEventData{
		ID:       resp.ID,
		Provider: resp.Provider,
		Model:    resp.Model,
		Usage:    resp.Usage,
	}))
}

func (s *Stream) send(c domain.Chunk) {
	select {
	case s.chunks <- c:
	case <-s.quit:
	}
}
