package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/beanval/internal/adapters/html5"
	"github.com/atvirokodosprendimai/beanval/internal/adapters/remote"
	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
)

type documentResponse struct {
	Name      string `json:"name"`
	Revision  string `json:"revision"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type html5Control struct {
	html5.Control
	DataAttributes map[string]string `json:"data_attributes"`
}

func (h *Handler) publishDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	stored, err := h.documents.Publish(r.Context(), name, json.RawMessage(body), actorFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(stored))
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.documents.Delete(r.Context(), chi.URLParam(r, "name"), actorFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// getConstraints serves the stored body verbatim. The revision doubles as
// ETag so clients holding the current revision get 304.
func (h *Handler) getConstraints(w http.ResponseWriter, r *http.Request) {
	stored, err := h.documents.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	etag := `"` + stored.Revision + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if len(h.secret) > 0 {
		w.Header().Set(remote.SignatureHeader, "sha256="+remote.Sign(h.secret, stored.Body))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(stored.Body); err != nil {
		h.logger.Error("write constraints", "document", stored.Name, "error", err)
	}
}

func (h *Handler) getHTML5(w http.ResponseWriter, r *http.Request) {
	doc, stored, err := h.documents.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	mapped := html5.Map(doc)
	controls := make([]html5Control, 0, len(mapped))
	for _, c := range mapped {
		controls = append(controls, html5Control{Control: c, DataAttributes: c.DataAttributes()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": stored.Name,
		"revision": stored.Revision,
		"controls": controls,
	})
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func toDocumentResponse(doc domain.StoredDocument) documentResponse {
	return documentResponse{
		Name:      doc.Name,
		Revision:  doc.Revision,
		CreatedAt: doc.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt: doc.UpdatedAt.UTC().Format(timeFormat),
	}
}
