package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
	"github.com/atvirokodosprendimai/beanval/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	apiKeyCtxKey    ctxKey = "api_key"
	maxJSONBodySize        = 1 << 20
)

type Handler struct {
	documents *usecase.DocumentService
	forms     *usecase.FormService
	auth      *usecase.AuthService
	audit     *usecase.AuditService
	logger    *slog.Logger
	secret    []byte
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithSigningSecret makes constraint document responses carry an HMAC
// signature header that remote fetchers can verify.
func WithSigningSecret(secret string) Option {
	return func(h *Handler) { h.secret = []byte(secret) }
}

func NewHandler(documents *usecase.DocumentService, forms *usecase.FormService, auth *usecase.AuthService, audit *usecase.AuditService, opts ...Option) *Handler {
	h := &Handler{documents: documents, forms: forms, auth: auth, audit: audit, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Get("/v1/documents", h.listDocuments)
	r.Get("/v1/documents/{name}/constraints.json", h.getConstraints)
	r.Get("/v1/documents/{name}/html5", h.getHTML5)
	r.Post("/v1/documents/{name}/forms", h.createForm)

	r.Post("/v1/forms", h.createForm)
	r.Get("/v1/forms/{id}", h.getForm)
	r.Delete("/v1/forms/{id}", h.closeForm)
	r.Put("/v1/forms/{id}/fields/{key}", h.commitField)
	r.Post("/v1/forms/{id}/fields/{key}/blur", h.blurField)
	r.Post("/v1/forms/{id}/validate", h.validateForm)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.With(h.requireDocumentScope).Put("/v1/documents/{name}", h.publishDocument)
		pr.With(h.requireDocumentScope).Delete("/v1/documents/{name}", h.deleteDocument)
		pr.Get("/v1/audit", h.listAudit)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			h.logger.Error("authenticate api key", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyCtxKey, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireDocumentScope rejects keys not issued for the {name} document.
func (h *Handler) requireDocumentScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _ := apiKeyFromContext(r.Context())
		if err := h.auth.Authorize(key, chi.URLParam(r, "name")); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	var afterID int64
	if raw := r.URL.Query().Get("after_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after_id must be integer")
			return
		}
		afterID = parsed
	}

	document := r.URL.Query().Get("document")
	if key, _ := apiKeyFromContext(r.Context()); len(key.Documents) > 0 {
		if document == "" {
			writeError(w, http.StatusForbidden, "scoped api key must filter audit by document")
			return
		}
		if err := h.auth.Authorize(key, document); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
	}

	events, err := h.audit.List(r.Context(), domain.AuditFilter{
		Document: document,
		AfterID:  afterID,
		Limit:    limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("encode json response", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	var violation *domain.ErrDocumentViolation
	switch {
	case errors.As(err, &violation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "constraint document rejected",
			"issues": violation.Issues,
		})
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, usecase.ErrNoRemoteStore):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads exactly one JSON value from the request body into dst.
// Numbers decode as json.Number so submitted values keep their precision.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func apiKeyFromContext(ctx context.Context) (domain.APIKey, bool) {
	key, ok := ctx.Value(apiKeyCtxKey).(domain.APIKey)
	return key, ok
}

func actorFromContext(ctx context.Context) string {
	key, _ := apiKeyFromContext(ctx)
	if key.Name == "" {
		return "api"
	}
	return key.Name
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "beanval",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/documents": map[string]any{
				"get": map[string]any{"summary": "List constraint documents"},
			},
			"/v1/documents/{name}": map[string]any{
				"put":    map[string]any{"summary": "Publish constraint document"},
				"delete": map[string]any{"summary": "Delete constraint document"},
			},
			"/v1/documents/{name}/constraints.json": map[string]any{
				"get": map[string]any{"summary": "Fetch constraint document"},
			},
			"/v1/documents/{name}/html5": map[string]any{
				"get": map[string]any{"summary": "HTML5 validation attributes per field"},
			},
			"/v1/documents/{name}/forms": map[string]any{
				"post": map[string]any{"summary": "Open form session on a stored document"},
			},
			"/v1/forms": map[string]any{
				"post": map[string]any{"summary": "Open form session on the remote constraint document"},
			},
			"/v1/forms/{id}": map[string]any{
				"get":    map[string]any{"summary": "Form session state"},
				"delete": map[string]any{"summary": "Close form session"},
			},
			"/v1/forms/{id}/fields/{key}": map[string]any{
				"put": map[string]any{"summary": "Commit field value"},
			},
			"/v1/forms/{id}/fields/{key}/blur": map[string]any{
				"post": map[string]any{"summary": "Report field blur"},
			},
			"/v1/forms/{id}/validate": map[string]any{
				"post": map[string]any{"summary": "Force-validate every field"},
			},
			"/v1/audit": map[string]any{
				"get": map[string]any{"summary": "List document audit events"},
			},
		},
	}
}
