package http

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"clinicapi/internal/access"
	"clinicapi/internal/audit"
	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/infrastructure"
	"clinicapi/internal/middleware"
)

// Resource names the entity a result is about
type Resource struct {
	ID   string
	Type string
}

// Result is what an endpoint produced. The adapter renders it and hands it
// to the audit recorder.
type Result struct {
	Status   int
	Body     any
	Resource Resource
	// Actor overrides the audited user for requests that are not
	// authenticated yet, such as a login.
	Actor string
}

// Endpoint handles a request and returns a structured result
type Endpoint func(r *http.Request) (*Result, error)

// OK returns a 200 result
func OK(body any) *Result {
	return &Result{Status: http.StatusOK, Body: body}
}

// Created returns a 201 result for the resource with the given ID
func Created(body any, id string) *Result {
	return &Result{Status: http.StatusCreated, Body: body, Resource: Resource{ID: id}}
}

// Adapter turns endpoints into http handlers
type Adapter struct {
	recorder     *audit.Recorder
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
	maxBody      int64
}

// NewAdapter creates an adapter. recorder may be nil to disable auditing.
func NewAdapter(recorder *audit.Recorder, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *Adapter {
	return &Adapter{
		recorder:     recorder,
		errorHandler: errorHandler,
		logger:       infrastructure.WithComponent(logger, "endpoint_adapter"),
		maxBody:      middleware.DefaultMaxBodySize,
	}
}

// Handle serves ep. When binding is non-nil a successful result is recorded
// after the response has been written.
func (a *Adapter) Handle(binding *audit.Binding, ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if binding != nil && r.Body != nil && r.Body != http.NoBody {
			var err error
			body, err = io.ReadAll(io.LimitReader(r.Body, a.maxBody+1))
			r.Body.Close()
			if err != nil {
				a.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
				return
			}
			if int64(len(body)) > a.maxBody {
				a.errorHandler.HandleError(w, r, apierrors.New(
					http.StatusRequestEntityTooLarge,
					"REQUEST_TOO_LARGE",
					"Request body too large",
				))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		res, err := ep(r)
		if err != nil {
			a.errorHandler.HandleError(w, r, err)
			return
		}
		if res == nil {
			res = &Result{Status: http.StatusNoContent}
		}
		a.render(w, r, res)

		if binding == nil || a.recorder == nil {
			return
		}
		b := *binding
		if res.Resource.Type != "" {
			b.ResourceType = res.Resource.Type
		}
		a.recorder.Record(r.Context(), b, a.snapshot(r, body, res), audit.Outcome{
			Status:     res.Status,
			ResourceID: res.Resource.ID,
			Body:       res.Body,
		})
	}
}

func (a *Adapter) render(w http.ResponseWriter, r *http.Request, res *Result) {
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	if res.Status == http.StatusNoContent || res.Body == nil {
		w.WriteHeader(res.Status)
		return
	}
	render.Status(r, res.Status)
	render.JSON(w, r, res.Body)
}

func (a *Adapter) snapshot(r *http.Request, body []byte, res *Result) audit.Snapshot {
	userID := res.Actor
	if userID == "" {
		if identity, ok := access.IdentityFrom(r.Context()); ok {
			userID = identity.ID
		}
	}
	return audit.Snapshot{
		Path:      r.URL.Path,
		IDParam:   chi.URLParam(r, "id"),
		Body:      body,
		UserID:    userID,
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
