package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/ports"
)

//go:embed constraint_document.schema.json
var documentSchemaJSON []byte

var (
	documentSchemaOnce sync.Once
	documentSchema     *santhosh.Schema
	documentSchemaErr  error
)

// DocumentService publishes constraint documents. Every published body is
// checked against the constraint document schema and gets a fresh revision.
type DocumentService struct {
	repo   ports.DocumentRepository
	audit  ports.AuditRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewDocumentService(repo ports.DocumentRepository, audit ports.AuditRepository, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *DocumentService) Publish(ctx context.Context, name string, body json.RawMessage, actor string) (domain.StoredDocument, error) {
	if err := domain.ValidateName(name); err != nil {
		return domain.StoredDocument{}, err
	}
	if !json.Valid(body) {
		return domain.StoredDocument{}, &domain.ErrDocumentViolation{Issues: []string{"body must be valid json"}}
	}
	if err := ValidateDocument(body); err != nil {
		return domain.StoredDocument{}, err
	}

	stored, err := s.repo.Put(ctx, domain.StoredDocument{
		Name:     name,
		Revision: uuid.NewString(),
		Body:     compact(body),
	})
	if err != nil {
		return domain.StoredDocument{}, fmt.Errorf("store document: %w", err)
	}
	s.record(ctx, domain.AuditActionPublish, stored.Name, stored.Revision, actor)
	s.logger.Info("constraint document published", "document", stored.Name, "revision", stored.Revision)
	return stored, nil
}

func (s *DocumentService) Get(ctx context.Context, name string) (domain.StoredDocument, error) {
	if err := domain.ValidateName(name); err != nil {
		return domain.StoredDocument{}, err
	}
	return s.repo.Get(ctx, name)
}

// Load returns the parsed document stored under name.
func (s *DocumentService) Load(ctx context.Context, name string) (domain.Document, domain.StoredDocument, error) {
	stored, err := s.Get(ctx, name)
	if err != nil {
		return nil, domain.StoredDocument{}, err
	}
	doc, err := domain.ParseDocument(stored.Body)
	if err != nil {
		return nil, domain.StoredDocument{}, err
	}
	return doc, stored, nil
}

func (s *DocumentService) List(ctx context.Context) ([]domain.StoredDocument, error) {
	return s.repo.List(ctx)
}

func (s *DocumentService) Delete(ctx context.Context, name, actor string) (bool, error) {
	if err := domain.ValidateName(name); err != nil {
		return false, err
	}
	deleted, err := s.repo.Delete(ctx, name)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	if deleted {
		s.record(ctx, domain.AuditActionDelete, name, "", actor)
	}
	return deleted, nil
}

// record writes an audit entry. A failed audit write is logged, not returned:
// the document change itself already happened.
func (s *DocumentService) record(ctx context.Context, action, name, revision, actor string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Log(ctx, domain.AuditEvent{
		Document: name,
		Revision: revision,
		Action:   action,
		Actor:    actor,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit log failed", "document", name, "action", action, "error", err)
	}
}

// ValidateDocument checks that body has the shape of a constraint document.
// Returns *domain.ErrDocumentViolation on failure.
func ValidateDocument(body json.RawMessage) error {
	sch, err := compiledDocumentSchema()
	if err != nil {
		return fmt.Errorf("compile document schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return &domain.ErrDocumentViolation{Issues: []string{err.Error()}}
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrDocumentViolation{Issues: collectValidationErrors(ve)}
		}
		return &domain.ErrDocumentViolation{Issues: []string{err.Error()}}
	}
	if _, err := domain.ParseDocument(body); err != nil {
		return &domain.ErrDocumentViolation{Issues: []string{err.Error()}}
	}
	return nil
}

func compiledDocumentSchema() (*santhosh.Schema, error) {
	documentSchemaOnce.Do(func() {
		compiler := santhosh.NewCompiler()
		compiler.Draft = santhosh.Draft7
		if err := compiler.AddResource("constraint_document.schema.json", bytes.NewReader(documentSchemaJSON)); err != nil {
			documentSchemaErr = err
			return
		}
		documentSchema, documentSchemaErr = compiler.Compile("constraint_document.schema.json")
	})
	return documentSchema, documentSchemaErr
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}

func compact(body json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return body
	}
	return buf.Bytes()
}
