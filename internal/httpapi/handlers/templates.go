package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/httpkit"
	"renderbridge/internal/models"
	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/worker/util"
)

type CreateTemplateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       json.RawMessage `json:"graph"`
}

func (h *Handler) PostTemplate(w http.ResponseWriter, r *http.Request) error {
	var req CreateTemplateRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return errors.ValidationField("name", "name is required")
	}
	graph, err := contracts.ParseGraph(req.Graph)
	if err != nil {
		return errors.ValidationField("graph", "`graph` must be an object")
	}

	t := &models.Template{
		ID:          util.NewID("tpl"),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Graph:       graph,
	}
	if err := h.templates.Create(r.Context(), t); err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"template": t})
	return nil
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) error {
	templates, err := h.templates.List(r.Context())
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"templates": templates})
	return nil
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) error {
	templateID := chi.URLParam(r, "templateId")

	t, err := h.templates.Get(r.Context(), templateID)
	if err != nil {
		return err
	}
	if t.DeletedAt != nil {
		return errors.NotFound("template", templateID)
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"template": t})
	return nil
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) error {
	if err := h.templates.Delete(r.Context(), chi.URLParam(r, "templateId")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
