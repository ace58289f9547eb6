package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/beanval/internal/core/binding"
	"github.com/atvirokodosprendimai/beanval/internal/core/domain"
)

type createFormRequest struct {
	Fields []binding.FieldSpec `json:"fields"`
}

type commitRequest struct {
	Value any `json:"value"`
}

// createForm serves both the stored-document route and the documentless
// /v1/forms route, which binds to the remote constraint store.
func (h *Handler) createForm(w http.ResponseWriter, r *http.Request) {
	var req createFormRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	session, err := h.forms.Create(r.Context(), chi.URLParam(r, "name"), req.Fields)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.View())
}

func (h *Handler) getForm(w http.ResponseWriter, r *http.Request) {
	session, err := h.forms.Get(chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

func (h *Handler) closeForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"closed": h.forms.Close(chi.URLParam(r, "id"))})
}

func (h *Handler) commitField(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	outcome, err := h.forms.Commit(chi.URLParam(r, "id"), domain.FieldKey(chi.URLParam(r, "key")), req.Value)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) blurField(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.forms.Blur(chi.URLParam(r, "id"), domain.FieldKey(chi.URLParam(r, "key")))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) validateForm(w http.ResponseWriter, r *http.Request) {
	view, err := h.forms.Validate(chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
