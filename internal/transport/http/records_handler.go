package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/middleware"
	"clinicapi/internal/storage"
)

// RecordsHandler serves clinic documents. The documents are opaque; only
// repository-owned fields are managed here.
type RecordsHandler struct {
	records storage.RecordRepository
	logger  *slog.Logger
}

// NewRecordsHandler creates a records handler
func NewRecordsHandler(records storage.RecordRepository, logger *slog.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		logger:  logger.With(slog.String("handler", "records")),
	}
}

// List handles GET /api/{module}
func (h *RecordsHandler) List(collection string) Endpoint {
	return func(r *http.Request) (*Result, error) {
		limit, err := middleware.QueryInt(r, "limit", 1, 500, 100)
		if err != nil {
			return nil, err
		}
		docs, err := h.records.List(r.Context(), collection, limit)
		if err != nil {
			return nil, err
		}
		return OK(map[string]any{"data": docs, "count": len(docs)}), nil
	}
}

// Get handles GET /api/{module}/{id}
func (h *RecordsHandler) Get(collection string) Endpoint {
	return func(r *http.Request) (*Result, error) {
		doc, err := h.records.Get(r.Context(), collection, chi.URLParam(r, "id"))
		if err != nil {
			return nil, err
		}
		return OK(doc), nil
	}
}

// Create handles POST /api/{module}
func (h *RecordsHandler) Create(collection string) Endpoint {
	return func(r *http.Request) (*Result, error) {
		doc, err := decodeDocument(r)
		if err != nil {
			return nil, err
		}
		stored, err := h.records.Insert(r.Context(), collection, storage.StripSystemFields(doc))
		if err != nil {
			return nil, err
		}

		id, _ := stored["_id"].(string)
		h.logger.DebugContext(r.Context(), "record created",
			slog.String("collection", collection),
			slog.String("id", id))
		return Created(stored, id), nil
	}
}

// Update handles PUT /api/{module}/{id}
func (h *RecordsHandler) Update(collection string) Endpoint {
	return func(r *http.Request) (*Result, error) {
		doc, err := decodeDocument(r)
		if err != nil {
			return nil, err
		}
		fields := storage.StripSystemFields(doc)
		if len(fields) == 0 {
			return nil, apierrors.ErrValidation("body", "no fields to update")
		}
		stored, err := h.records.Update(r.Context(), collection, chi.URLParam(r, "id"), fields)
		if err != nil {
			return nil, err
		}
		return OK(stored), nil
	}
}

// Delete handles DELETE /api/{module}/{id}
func (h *RecordsHandler) Delete(collection string) Endpoint {
	return func(r *http.Request) (*Result, error) {
		id := chi.URLParam(r, "id")
		if err := h.records.Delete(r.Context(), collection, id); err != nil {
			return nil, err
		}
		return OK(map[string]any{"_id": id, "deleted": true}), nil
	}
}

// decodeDocument reads a JSON object body
func decodeDocument(r *http.Request) (storage.Record, error) {
	var doc storage.Record
	if err := render.DecodeJSON(r.Body, &doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apierrors.ErrValidation("body", "request body is required")
		}
		return nil, apierrors.InvalidRequestWithError(err)
	}
	if doc == nil {
		return nil, apierrors.ErrValidation("body", "request body must be a JSON object")
	}
	return doc, nil
}
