package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/beanval/internal/core/binding"
	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/rules"
)

var ErrNoRemoteStore = errors.New("no remote constraint store configured")

// DefaultSessionTTL is how long a form session survives without requests.
const DefaultSessionTTL = 30 * time.Minute

// FormSession is a server-side form bound to one constraint store.
type FormSession struct {
	ID        string
	Document  string
	Revision  string
	CreatedAt time.Time

	form     *binding.Form
	store    *ConstraintStore
	lastSeen time.Time // guarded by FormService.mu
}

// FormView is the JSON shape of a session.
type FormView struct {
	ID         string             `json:"id"`
	Document   string             `json:"document,omitempty"`
	Revision   string             `json:"revision,omitempty"`
	StoreState StoreState         `json:"store_state"`
	StoreError string             `json:"store_error,omitempty"`
	Valid      bool               `json:"valid"`
	Fields     []binding.Snapshot `json:"fields"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (s *FormSession) View() FormView {
	var storeErr string
	if err := s.store.Err(); err != nil {
		storeErr = err.Error()
	}
	return FormView{
		ID:         s.ID,
		Document:   s.Document,
		Revision:   s.Revision,
		StoreState: s.store.State(),
		StoreError: storeErr,
		Valid:      s.form.Valid(),
		Fields:     s.form.Snapshot(),
		CreatedAt:  s.CreatedAt,
	}
}

// FormService keeps form sessions. Sessions for the same document revision
// share one ConstraintStore, so a document is fetched once per revision.
// Sessions idle for longer than the TTL expire and are swept on Create.
type FormService struct {
	docs   *DocumentService
	rules  *rules.RuleSet
	remote *ConstraintStore
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration

	mu     sync.Mutex
	stores map[string]*ConstraintStore
	forms  map[string]*FormSession
}

type FormServiceOption func(*FormService)

// WithRemoteStore serves documentless sessions from a store pinned to an
// external constraint document.
func WithRemoteStore(store *ConstraintStore) FormServiceOption {
	return func(s *FormService) { s.remote = store }
}

// WithSessionTTL sets the idle lifetime of sessions. Non-positive values
// keep DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) FormServiceOption {
	return func(s *FormService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock sets the clock used for session timestamps and expiry.
func WithClock(now func() time.Time) FormServiceOption {
	return func(s *FormService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewFormService(docs *DocumentService, rs *rules.RuleSet, logger *slog.Logger, opts ...FormServiceOption) *FormService {
	if rs == nil {
		rs = rules.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &FormService{
		docs:   docs,
		rules:  rs,
		logger: logger,
		now:    time.Now,
		ttl:    DefaultSessionTTL,
		stores: make(map[string]*ConstraintStore),
		forms:  make(map[string]*FormSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a session on the stored document name, or on the remote store
// when name is empty. The document load is awaited within ctx; if it fails or
// ctx ends first the session still opens and its fields stay unbound.
func (s *FormService) Create(ctx context.Context, name string, specs []binding.FieldSpec) (*FormSession, error) {
	store, revision, err := s.storeFor(ctx, name)
	if err != nil {
		return nil, err
	}

	form := binding.NewForm(s.rules)
	for _, spec := range specs {
		if _, err := form.Field(spec); err != nil {
			return nil, fmt.Errorf("field %q: %w", binding.ResolveKey(spec.Key, spec.Model), err)
		}
	}
	store.OnReady(form.Attach)
	if _, err := store.Await(ctx); err != nil {
		s.logger.Warn("form opened without constraints", "document", name, "error", err)
	}

	now := s.now().UTC()
	session := &FormSession{
		ID:        uuid.NewString(),
		Document:  name,
		Revision:  revision,
		CreatedAt: now,
		form:      form,
		store:     store,
		lastSeen:  now,
	}
	s.mu.Lock()
	expired := s.sweepLocked(now)
	s.forms[session.ID] = session
	s.mu.Unlock()

	for _, old := range expired {
		old.form.Close()
	}
	if len(expired) > 0 {
		s.logger.Info("form sessions expired", "count", len(expired))
	}
	return session, nil
}

// Get returns a live session and marks it as used.
func (s *FormService) Get(id string) (*FormSession, error) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.forms[id]
	if !ok || s.expiredLocked(session, now) {
		return nil, domain.ErrNotFound
	}
	session.lastSeen = now
	return session, nil
}

func (s *FormService) expiredLocked(session *FormSession, now time.Time) bool {
	return now.Sub(session.lastSeen) > s.ttl
}

func (s *FormService) sweepLocked(now time.Time) []*FormSession {
	var expired []*FormSession
	for id, session := range s.forms {
		if s.expiredLocked(session, now) {
			expired = append(expired, session)
			delete(s.forms, id)
		}
	}
	return expired
}

// Commit offers value to the field key, creating the field on first use.
func (s *FormService) Commit(id string, key domain.FieldKey, value any) (binding.Outcome, error) {
	field, err := s.field(id, key)
	if err != nil {
		return binding.Outcome{}, err
	}
	return field.Commit(value), nil
}

// Blur reports focus loss on a field the session already has. A control that
// never rendered cannot lose focus, so unknown keys are not found.
func (s *FormService) Blur(id string, key domain.FieldKey) (binding.Outcome, error) {
	session, err := s.Get(id)
	if err != nil {
		return binding.Outcome{}, err
	}
	field, ok := session.form.Lookup(key)
	if !ok {
		return binding.Outcome{}, fmt.Errorf("field %s: %w", key, domain.ErrNotFound)
	}
	return field.Blur(), nil
}

// Validate broadcasts force-validate to every field of the session.
func (s *FormService) Validate(id string) (FormView, error) {
	session, err := s.Get(id)
	if err != nil {
		return FormView{}, err
	}
	session.form.ForceValidate()
	return session.View(), nil
}

func (s *FormService) Close(id string) bool {
	s.mu.Lock()
	session, ok := s.forms[id]
	delete(s.forms, id)
	s.mu.Unlock()
	if ok {
		session.form.Close()
	}
	return ok
}

func (s *FormService) field(id string, key domain.FieldKey) (*binding.Field, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return session.form.Field(binding.FieldSpec{Key: string(key)})
}

func (s *FormService) storeFor(ctx context.Context, name string) (*ConstraintStore, string, error) {
	if name == "" {
		if s.remote == nil {
			return nil, "", ErrNoRemoteStore
		}
		s.remote.Load()
		return s.remote, "", nil
	}

	stored, err := s.docs.Get(ctx, name)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.stores[name]
	if !ok || store.URI() != revisionURI(stored.Name, stored.Revision) {
		store = NewConstraintStore(revisionFetcher{docs: s.docs}, revisionURI(stored.Name, stored.Revision), s.logger)
		s.stores[name] = store
	}
	store.Load()
	return store, stored.Revision, nil
}

func revisionURI(name, revision string) string {
	return name + "@" + revision
}

// revisionFetcher reads a stored document and insists on the revision named
// in the uri, so a store never mixes two revisions.
type revisionFetcher struct {
	docs *DocumentService
}

func (f revisionFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	name, revision, ok := strings.Cut(uri, "@")
	if !ok {
		return nil, fmt.Errorf("malformed document uri %q", uri)
	}
	stored, err := f.docs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if stored.Revision != revision {
		return nil, fmt.Errorf("document %s: revision %s superseded by %s", name, revision, stored.Revision)
	}
	return stored.Body, nil
}
