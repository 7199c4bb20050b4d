// Package service holds the chat turn pipeline and session operations.
package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/riyak972/capstone-chat/internal/config"
	"github.com/riyak972/capstone-chat/internal/policy"
	"github.com/riyak972/capstone-chat/internal/provider"
	"github.com/riyak972/capstone-chat/internal/repository"
	"github.com/riyak972/capstone-chat/internal/usage"
)

// Service coordinates sessions, providers and persistence.
type Service struct {
	store        repository.Store
	registry     *provider.Registry
	metrics      *usage.Metrics
	config       *config.Config
	policyEngine *policy.Engine
	logger       *slog.Logger
	now          func() time.Time
	locks        *sessionLocks
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. policyEngine may be nil, in which case only the
// length limit is enforced on message content.
func New(store repository.Store, registry *provider.Registry, metrics *usage.Metrics, cfg *config.Config, policyEngine *policy.Engine, opts ...Option) *Service {
	s := &Service{
		store:        store,
		registry:     registry,
		metrics:      metrics,
		config:       cfg,
		policyEngine: policyEngine,
		logger:       slog.Default(),
		now:          time.Now,
		locks:        newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the provider registry.
func (s *Service) Registry() *provider.Registry { return s.registry }

// Metrics returns the usage metrics.
func (s *Service) Metrics() *usage.Metrics { return s.metrics }

// sessionLocks serializes work on a single session. Entries are removed once
// no goroutine holds or waits for them.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*lockEntry)}
}

func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
