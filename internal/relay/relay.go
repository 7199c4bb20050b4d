// Package relay frames a chunk stream for delivery to a client over a
// long-lived connection, with a connect handshake and periodic heartbeats.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/riyak972/capstone-chat/internal/domain"
)

// Event names written by a Relay.
const (
	EventConnected = "connected"
	EventMessage   = "message"
	EventHeartbeat = "heartbeat"
)

const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultRetry             = 3 * time.Second
)

// Frame is one outbound event.
type Frame struct {
	Event string
	Data  any
	// Retry is the reconnect hint, only set on the connected frame.
	Retry time.Duration
}

// Channel is the transport a Relay writes to.
type Channel interface {
	Write(Frame) error
	// Done is closed when the client goes away.
	Done() <-chan struct{}
	// End finishes the response. Called once.
	End() error
}

// Options configures a Relay.
type Options struct {
	HeartbeatInterval time.Duration
	Retry             time.Duration
	Logger            *slog.Logger
}

// Relay writes chunks to a Channel. It is safe for concurrent use; once
// closed, further chunks are dropped.
type Relay struct {
	ch     Channel
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

// New writes the connected frame and starts the heartbeat.
func New(ch Channel, opts Options) *Relay {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Relay{
		ch:     ch,
		logger: opts.Logger,
		stop:   make(chan struct{}),
	}
	r.write(Frame{
		Event: EventConnected,
		Data:  map[string]int64{"retry": opts.Retry.Milliseconds()},
		Retry: opts.Retry,
	})
	go r.heartbeat(opts.HeartbeatInterval)
	return r
}

// Send writes c as a message frame. It reports false if the relay is closed.
func (r *Relay) Send(c domain.Chunk) bool {
	return r.write(Frame{Event: EventMessage, Data: c})
}

// Closed reports whether the relay has been closed.
func (r *Relay) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops the heartbeat and ends the channel. Safe to call more than once.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Relay) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	close(r.stop)
	if err := r.ch.End(); err != nil {
		r.logger.Debug("relay end failed", "error", err)
	}
}

func (r *Relay) write(f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if err := r.ch.Write(f); err != nil {
		r.logger.Warn("relay write failed, closing", "event", f.Event, "error", err)
		r.closeLocked()
		return false
	}
	return true
}

func (r *Relay) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ch.Done():
			r.Close()
			return
		case <-ticker.C:
			r.write(Frame{Event: EventHeartbeat, Data: struct{}{}})
		}
	}
}
