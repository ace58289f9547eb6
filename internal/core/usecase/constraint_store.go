package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/ports"
)

type StoreState int

const (
	StorePending StoreState = iota
	StoreResolved
	StoreFailed
)

func (s StoreState) String() string {
	switch s {
	case StoreResolved:
		return "resolved"
	case StoreFailed:
		return "failed"
	default:
		return "pending"
	}
}

func (s StoreState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConstraintStore fetches one constraint document exactly once and shares the
// result with every caller. A failed fetch is terminal: Await keeps returning
// the failure and continuations registered with OnReady never run.
type ConstraintStore struct {
	fetcher ports.DocumentFetcher
	uri     string
	logger  *slog.Logger

	once sync.Once
	done chan struct{}

	mu      sync.Mutex
	state   StoreState
	doc     domain.Document
	err     error
	waiting []func(domain.Document)
}

func NewConstraintStore(fetcher ports.DocumentFetcher, uri string, logger *slog.Logger) *ConstraintStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConstraintStore{
		fetcher: fetcher,
		uri:     uri,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (s *ConstraintStore) URI() string { return s.uri }

// Load starts the fetch. Calling it again has no effect.
func (s *ConstraintStore) Load() {
	s.once.Do(func() {
		go s.fetch()
	})
}

// Await starts the fetch if needed and blocks until the document is resolved,
// the fetch failed, or ctx is done.
func (s *ConstraintStore) Await(ctx context.Context) (domain.Document, error) {
	s.Load()
	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StoreFailed {
		return nil, s.err
	}
	return s.doc, nil
}

// OnReady registers fn to run with the document once it is resolved. Pending
// continuations run in registration order on the fetch goroutine before any
// Await returns, so fn must not call Await. On an already resolved store fn
// runs immediately.
func (s *ConstraintStore) OnReady(fn func(domain.Document)) {
	s.mu.Lock()
	switch s.state {
	case StoreResolved:
		doc := s.doc
		s.mu.Unlock()
		fn(doc)
	case StoreFailed:
		s.mu.Unlock()
	default:
		s.waiting = append(s.waiting, fn)
		s.mu.Unlock()
	}
}

func (s *ConstraintStore) State() StoreState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ConstraintStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ConstraintStore) fetch() {
	// The fetch outlives whichever request triggered it; the fetcher bounds it.
	doc, err := s.retrieve(context.Background())
	defer close(s.done)

	s.mu.Lock()
	waiting := s.waiting
	s.waiting = nil
	if err != nil {
		s.state = StoreFailed
		s.err = fmt.Errorf("%w: %s: %v", domain.ErrLoadFailed, s.uri, err)
		s.mu.Unlock()
		s.logger.Error("constraint document load failed", "uri", s.uri, "error", err)
		return
	}
	s.state = StoreResolved
	s.doc = doc
	s.mu.Unlock()

	s.logger.Info("constraint document loaded", "uri", s.uri, "fields", len(doc), "continuations", len(waiting))
	for _, fn := range waiting {
		fn(doc)
	}
}

func (s *ConstraintStore) retrieve(ctx context.Context) (domain.Document, error) {
	raw, err := s.fetcher.Fetch(ctx, s.uri)
	if err != nil {
		return nil, err
	}
	return domain.ParseDocument(raw)
}
