package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/atvirokodosprendimai/beanval/internal/adapters/remote"
	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/usecase"
)

const (
	testAPIKey   = "test-api-key"
	scopedAPIKey = "person-only-key"
)

type stubDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]domain.StoredDocument
}

func newStubDocumentRepo() *stubDocumentRepo {
	return &stubDocumentRepo{docs: make(map[string]domain.StoredDocument)}
}

func (r *stubDocumentRepo) Put(_ context.Context, doc domain.StoredDocument) (domain.StoredDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	r.docs[doc.Name] = doc
	return doc, nil
}

func (r *stubDocumentRepo) Get(_ context.Context, name string) (domain.StoredDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[name]
	if !ok {
		return domain.StoredDocument{}, domain.ErrNotFound
	}
	return doc, nil
}

func (r *stubDocumentRepo) Delete(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.docs[name]
	delete(r.docs, name)
	return ok, nil
}

func (r *stubDocumentRepo) List(context.Context) ([]domain.StoredDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.StoredDocument, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc)
	}
	return out, nil
}

type stubAPIKeyRepo struct{}

func (s *stubAPIKeyRepo) FindByTokenHash(_ context.Context, hash string) (domain.APIKey, error) {
	switch hash {
	case usecase.HashToken(testAPIKey):
		return domain.APIKey{TokenHash: hash, Name: "test-client", Active: true, CreatedAt: time.Now().UTC()}, nil
	case usecase.HashToken(scopedAPIKey):
		return domain.APIKey{TokenHash: hash, Name: "person-team", Active: true, Documents: []string{"person*"}}, nil
	}
	return domain.APIKey{}, domain.ErrNotFound
}
func (s *stubAPIKeyRepo) Upsert(context.Context, domain.APIKey) error { return nil }

type stubAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (s *stubAuditRepo) Log(_ context.Context, e domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, e)
	return nil
}

func (s *stubAuditRepo) List(context.Context, domain.AuditFilter) ([]domain.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEvent(nil), s.events...), nil
}

type testEnv struct {
	router http.Handler
	audit  *stubAuditRepo
}

func newTestEnv(opts ...Option) testEnv {
	audit := &stubAuditRepo{}
	docs := usecase.NewDocumentService(newStubDocumentRepo(), audit, nil)
	forms := usecase.NewFormService(docs, nil, nil)
	auth := usecase.NewAuthService(&stubAPIKeyRepo{})
	h := NewHandler(docs, forms, auth, usecase.NewAuditService(audit), opts...)
	return testEnv{router: h.Router(), audit: audit}
}

func (e testEnv) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// formBody is the client view of a form session.
type formBody struct {
	ID         string `json:"id"`
	StoreState string `json:"store_state"`
	Valid      bool   `json:"valid"`
	Fields     []struct {
		Key   string `json:"key"`
		Bound bool   `json:"bound"`
	} `json:"fields"`
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

const personDoc = `{
  "person.firstname": {"notNull": {"message": "First name is required"}, "size": {"min": 2, "max": 20}},
  "person.lastname": {"pattern": {"regexp": "[a-zA-Z]+", "flags": [], "message": "Letters only"}},
  "person.income": {"decimalMin": {"value": "500,00", "inclusive": true, "message": "at least 500"}},
  "person.code": {"digits": {"integer": 3, "fraction": 2}}
}`

func (e testEnv) publish(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPut, "/v1/documents/person", personDoc, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out documentResponse
	decodeBody(t, rec, &out)
	return out.Revision
}

func TestPublishRequiresAPIKey(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodPut, "/v1/documents/person", personDoc, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/audit", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestScopedKeyLimitedToItsDocuments(t *testing.T) {
	env := newTestEnv()
	send := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+scopedAPIKey)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodPut, "/v1/documents/person.v2", personDoc); code != http.StatusOK {
		t.Fatalf("publish in scope: expected 200, got %d", code)
	}
	if code := send(http.MethodPut, "/v1/documents/address", personDoc); code != http.StatusForbidden {
		t.Fatalf("publish out of scope: expected 403, got %d", code)
	}
	if code := send(http.MethodDelete, "/v1/documents/address", ""); code != http.StatusForbidden {
		t.Fatalf("delete out of scope: expected 403, got %d", code)
	}
	if code := send(http.MethodGet, "/v1/audit", ""); code != http.StatusForbidden {
		t.Fatalf("unfiltered audit: expected 403, got %d", code)
	}
	if code := send(http.MethodGet, "/v1/audit?document=person.v2", ""); code != http.StatusOK {
		t.Fatalf("filtered audit: expected 200, got %d", code)
	}
	if got := env.audit.events[0].Actor; got != "person-team" {
		t.Fatalf("audit actor = %q", got)
	}
}

func TestPublishRejectsMalformedDocument(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodPut, "/v1/documents/person", `{"person.age":{"min":{"value":true}}}`, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Issues []string `json:"issues"`
	}
	decodeBody(t, rec, &payload)
	if len(payload.Issues) == 0 {
		t.Fatal("expected schema issues")
	}

	rec = env.do(t, http.MethodPut, "/v1/documents/bad%20name", `{}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestConstraintsServedWithETagAndSignature(t *testing.T) {
	env := newTestEnv(WithSigningSecret("s3cret"))
	revision := env.publish(t)

	rec := env.do(t, http.MethodGet, "/v1/documents/person/constraints.json", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("ETag"); got != `"`+revision+`"` {
		t.Fatalf("ETag = %q, want revision %q", got, revision)
	}
	sig := strings.TrimPrefix(rec.Header().Get(remote.SignatureHeader), "sha256=")
	if !remote.Verify([]byte("s3cret"), rec.Body.Bytes(), sig) {
		t.Fatal("signature does not verify against served body")
	}
	if _, err := domain.ParseDocument(rec.Body.Bytes()); err != nil {
		t.Fatalf("served body does not parse: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/person/constraints.json", nil)
	req.Header.Set("If-None-Match", `"`+revision+`"`)
	notModified := httptest.NewRecorder()
	env.router.ServeHTTP(notModified, req)
	if notModified.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", notModified.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/documents/missing/constraints.json", "", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHTML5Mapping(t *testing.T) {
	env := newTestEnv()
	env.publish(t)

	rec := env.do(t, http.MethodGet, "/v1/documents/person/html5", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Controls []struct {
			Key            string            `json:"key"`
			Attributes     map[string]string `json:"attributes"`
			DataAttributes map[string]string `json:"data_attributes"`
		} `json:"controls"`
	}
	decodeBody(t, rec, &payload)

	got := map[string]map[string]string{}
	for _, c := range payload.Controls {
		got[c.Key] = c.Attributes
	}
	want := map[string]map[string]string{
		"person.code":      {"step": "0.01"},
		"person.firstname": {"required": "required", "minlength": "2", "maxlength": "20"},
		"person.income":    {"min": "500"},
		"person.lastname":  {"pattern": "[a-zA-Z]+"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("attributes mismatch (-want +got):\n%s", diff)
	}
	for _, c := range payload.Controls {
		if c.Key == "person.income" && c.DataAttributes["data-err-range-underflow"] != "at least 500" {
			t.Fatalf("missing underflow message: %#v", c.DataAttributes)
		}
	}
}

func TestFormSessionFlow(t *testing.T) {
	env := newTestEnv()
	env.publish(t)

	rec := env.do(t, http.MethodPost, "/v1/documents/person/forms", `{"fields":[{"model":"person.firstname"},{"model":"person.lastname"}]}`, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var form formBody
	decodeBody(t, rec, &form)
	if form.StoreState != usecase.StoreResolved.String() || len(form.Fields) != 2 {
		t.Fatalf("unexpected form: %#v", form)
	}

	base := "/v1/forms/" + form.ID
	rec = env.do(t, http.MethodPut, base+"/fields/person.lastname", `{"value":"Sm1th"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit: expected 200, got %d", rec.Code)
	}
	var outcome struct {
		Accepted bool `json:"accepted"`
		State    struct {
			Valid    bool            `json:"valid"`
			Rules    map[string]bool `json:"rules"`
			Messages []string        `json:"messages"`
		} `json:"state"`
	}
	decodeBody(t, rec, &outcome)
	if outcome.Accepted || outcome.State.Rules["pattern"] {
		t.Fatalf("expected rejection, got %#v", outcome)
	}
	if diff := cmp.Diff([]string{"Letters only"}, outcome.State.Messages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}

	rec = env.do(t, http.MethodPost, base+"/fields/person.firstname/blur", "", false)
	decodeBody(t, rec, &outcome)
	if outcome.Accepted || outcome.State.Messages[0] != "First name is required" {
		t.Fatalf("blur on empty required field: %#v", outcome)
	}

	rec = env.do(t, http.MethodPost, base+"/fields/person.nickname/blur", "", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("blur on a field the form never had: expected 404, got %d", rec.Code)
	}

	env.do(t, http.MethodPut, base+"/fields/person.firstname", `{"value":"Ann"}`, false)
	env.do(t, http.MethodPut, base+"/fields/person.lastname", `{"value":"Smith"}`, false)
	rec = env.do(t, http.MethodPut, base+"/fields/person.income", `{"value":500.00}`, false)
	decodeBody(t, rec, &outcome)
	if !outcome.Accepted {
		t.Fatalf("inclusive lower bound must accept 500.00: %#v", outcome)
	}

	rec = env.do(t, http.MethodPost, base+"/validate", "", false)
	var view formBody
	decodeBody(t, rec, &view)
	if !view.Valid {
		t.Fatalf("expected valid form, got %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, base, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, base, "", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rec.Code)
	}
}

func TestCreateFormWithoutRemoteStore(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodPost, "/v1/forms", "", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCommitRejectsTrailingJSON(t *testing.T) {
	env := newTestEnv()
	env.publish(t)
	rec := env.do(t, http.MethodPost, "/v1/documents/person/forms", "", false)
	var form formBody
	decodeBody(t, rec, &form)

	rec = env.do(t, http.MethodPut, "/v1/forms/"+form.ID+"/fields/person.code", `{"value":"1"} {}`, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPut, "/v1/forms/"+form.ID+"/fields/person.code", `{"value":"1","extra":1}`, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteDocumentIsAudited(t *testing.T) {
	env := newTestEnv()
	env.publish(t)

	rec := env.do(t, http.MethodDelete, "/v1/documents/person", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/audit?document=person", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Events []domain.AuditEvent `json:"events"`
	}
	decodeBody(t, rec, &payload)
	actions := make([]string, 0, len(payload.Events))
	for _, e := range payload.Events {
		actions = append(actions, e.Action+":"+e.Actor)
	}
	if diff := cmp.Diff([]string{"publish:test-client", "delete:test-client"}, actions); diff != "" {
		t.Fatalf("audit mismatch (-want +got):\n%s", diff)
	}

	rec = env.do(t, http.MethodGet, "/v1/audit?limit=bad", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWriteJSONEncodeErrorHandled(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"bad": func() {}})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestHandleDomainErrorInvalidName(t *testing.T) {
	rec := httptest.NewRecorder()
	handleDomainError(rec, domain.ErrInvalidName)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] == "" {
		t.Fatal("expected error message")
	}
}

func TestHandleDomainErrorUnknown(t *testing.T) {
	rec := httptest.NewRecorder()
	handleDomainError(rec, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	env := newTestEnv()
	rec := env.do(t, http.MethodGet, "/openapi.json", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
