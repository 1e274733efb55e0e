package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clinicapi/internal/infrastructure"
	"clinicapi/pkg/contracts/domain"
)

// Binding describes what a route mutates. Empty fields are inferred from
// the request path.
type Binding struct {
	Action       domain.AuditAction
	Module       string
	ResourceType string
}

// Snapshot is what the recorder needs from a finished request
type Snapshot struct {
	Path      string
	IDParam   string
	Body      []byte
	UserID    string
	IPAddress string
	UserAgent string
}

// Outcome is what the handler produced
type Outcome struct {
	Status     int
	ResourceID string
	Body       any
}

// Enqueuer accepts entries for asynchronous persistence
type Enqueuer interface {
	Enqueue(ctx context.Context, entry domain.AuditLogEntry) bool
}

// Recorder builds audit entries for successful requests
type Recorder struct {
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder that hands entries to queue
func NewRecorder(queue Enqueuer, logger *slog.Logger) *Recorder {
	return &Recorder{
		queue:  queue,
		logger: infrastructure.WithComponent(logger, "audit_recorder"),
		now:    time.Now,
	}
}

// Record enqueues an entry when the outcome is a success. It never blocks
// on persistence and reports whether an entry was accepted.
func (r *Recorder) Record(ctx context.Context, b Binding, snap Snapshot, out Outcome) bool {
	entry, ok := r.Build(b, snap, out)
	if !ok {
		return false
	}
	return r.queue.Enqueue(ctx, entry)
}

// Build returns the entry for a request, or false when the status is not 2xx
func (r *Recorder) Build(b Binding, snap Snapshot, out Outcome) (domain.AuditLogEntry, bool) {
	if out.Status < 200 || out.Status >= 300 {
		return domain.AuditLogEntry{}, false
	}

	module := b.Module
	if module == "" {
		module = InferModule(snap.Path)
	}
	resourceType := b.ResourceType
	if resourceType == "" {
		resourceType = InferResourceType(module)
	}

	entry := domain.AuditLogEntry{
		User:         snap.UserID,
		Action:       b.Action,
		Module:       module,
		ResourceID:   resourceID(snap, out),
		ResourceType: resourceType,
		IPAddress:    snap.IPAddress,
		UserAgent:    snap.UserAgent,
		Timestamp:    r.now().UTC(),
	}

	if b.Action == domain.AuditActionUpdate {
		changes, err := decodeObject(snap.Body)
		if err != nil {
			r.logger.Warn("audit changes not recorded",
				slog.String("module", module),
				slog.String("error", err.Error()))
		}
		entry.Changes = changes
	}

	return entry, true
}

// resourceID prefers the handler's answer, then the {id} route parameter,
// then an identifier in the response or request body
func resourceID(snap Snapshot, out Outcome) string {
	if out.ResourceID != "" {
		return out.ResourceID
	}
	if snap.IDParam != "" {
		return snap.IDParam
	}
	if id := bodyID(out.Body); id != "" {
		return id
	}
	if obj, err := decodeObject(snap.Body); err == nil {
		return bodyID(obj)
	}
	return ""
}

func bodyID(body any) string {
	var obj map[string]any
	switch v := body.(type) {
	case map[string]any:
		obj = v
	default:
		return ""
	}
	for _, key := range []string{"_id", "id"} {
		switch id := obj[key].(type) {
		case string:
			if id != "" {
				return id
			}
		case fmt.Stringer:
			return id.String()
		}
	}
	return ""
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}
	return obj, nil
}

// InferModule returns the first path segment after /api
func InferModule(path string) string {
	rest := strings.TrimPrefix(path, "/api")
	rest = strings.Trim(rest, "/")
	module, _, _ := strings.Cut(rest, "/")
	return module
}

// InferResourceType derives a singular type name from a module key,
// e.g. "lab-work" becomes "LabWork" and "patients" becomes "Patient"
func InferResourceType(module string) string {
	if module == "" {
		return ""
	}
	var b strings.Builder
	for _, part := range strings.Split(module, "-") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	name := b.String()
	if strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss") {
		name = strings.TrimSuffix(name, "s")
	}
	return name
}
