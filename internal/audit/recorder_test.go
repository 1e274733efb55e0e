package audit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/internal/shared/testutil"
	"clinicapi/pkg/contracts/domain"
)

type captureQueue struct {
	entries []domain.AuditLogEntry
	accept  bool
}

func (c *captureQueue) Enqueue(_ context.Context, e domain.AuditLogEntry) bool {
	c.entries = append(c.entries, e)
	return c.accept
}

func newRecorder(t *testing.T) (*Recorder, *captureQueue) {
	logger, _ := testutil.NewTestLogger(t)
	q := &captureQueue{accept: true}
	r := NewRecorder(q, logger)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return r, q
}

func TestRecorderOnlyRecordsSuccess(t *testing.T) {
	r, q := newRecorder(t)
	b := Binding{Action: domain.AuditActionCreate, Module: "patients", ResourceType: "Patient"}

	for _, status := range []int{199, 300, 400, 403, 500} {
		assert.False(t, r.Record(context.Background(), b, Snapshot{}, Outcome{Status: status}), "status %d", status)
	}
	assert.Empty(t, q.entries)

	for _, status := range []int{200, 201, 204, 299} {
		assert.True(t, r.Record(context.Background(), b, Snapshot{}, Outcome{Status: status}), "status %d", status)
	}
	assert.Len(t, q.entries, 4)
}

func TestRecorderBuild(t *testing.T) {
	r, _ := newRecorder(t)

	snap := Snapshot{
		Path:      "/api/patients/p-1",
		IDParam:   "p-1",
		Body:      []byte(`{"name":"Ana","phone":"555"}`),
		UserID:    "u-7",
		IPAddress: "203.0.113.9",
		UserAgent: "test-agent",
	}

	t.Run("update carries the full body", func(t *testing.T) {
		entry, ok := r.Build(Binding{Action: domain.AuditActionUpdate, Module: "patients", ResourceType: "Patient"},
			snap, Outcome{Status: http.StatusOK})
		require.True(t, ok)

		assert.Equal(t, "u-7", entry.User)
		assert.Equal(t, domain.AuditActionUpdate, entry.Action)
		assert.Equal(t, "patients", entry.Module)
		assert.Equal(t, "Patient", entry.ResourceType)
		assert.Equal(t, "p-1", entry.ResourceID)
		assert.Equal(t, map[string]any{"name": "Ana", "phone": "555"}, entry.Changes)
		assert.Equal(t, "203.0.113.9", entry.IPAddress)
		assert.Equal(t, "test-agent", entry.UserAgent)
		assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), entry.Timestamp)
	})

	t.Run("create and delete carry no changes", func(t *testing.T) {
		for _, action := range []domain.AuditAction{domain.AuditActionCreate, domain.AuditActionDelete} {
			entry, ok := r.Build(Binding{Action: action, Module: "patients"}, snap, Outcome{Status: http.StatusOK})
			require.True(t, ok)
			assert.Nil(t, entry.Changes)
		}
	})

	t.Run("module and type inferred from path", func(t *testing.T) {
		entry, ok := r.Build(Binding{Action: domain.AuditActionDelete},
			Snapshot{Path: "/api/lab-work/9", IDParam: "9"}, Outcome{Status: http.StatusOK})
		require.True(t, ok)
		assert.Equal(t, "lab-work", entry.Module)
		assert.Equal(t, "LabWork", entry.ResourceType)
	})

	t.Run("malformed update body is tolerated", func(t *testing.T) {
		entry, ok := r.Build(Binding{Action: domain.AuditActionUpdate, Module: "billing"},
			Snapshot{Body: []byte(`[1,2]`)}, Outcome{Status: http.StatusOK})
		require.True(t, ok)
		assert.Nil(t, entry.Changes)
	})
}

func TestRecorderResourceIDPriority(t *testing.T) {
	r, _ := newRecorder(t)
	b := Binding{Action: domain.AuditActionCreate, Module: "patients"}

	tests := []struct {
		name string
		snap Snapshot
		out  Outcome
		want string
	}{
		{
			name: "handler answer wins",
			snap: Snapshot{IDParam: "param", Body: []byte(`{"_id":"req"}`)},
			out:  Outcome{Status: 200, ResourceID: "explicit", Body: map[string]any{"_id": "resp"}},
			want: "explicit",
		},
		{
			name: "route parameter",
			snap: Snapshot{IDParam: "param", Body: []byte(`{"_id":"req"}`)},
			out:  Outcome{Status: 200, Body: map[string]any{"_id": "resp"}},
			want: "param",
		},
		{
			name: "response body _id",
			snap: Snapshot{Body: []byte(`{"_id":"req"}`)},
			out:  Outcome{Status: 201, Body: map[string]any{"_id": "resp"}},
			want: "resp",
		},
		{
			name: "request body id",
			snap: Snapshot{Body: []byte(`{"id":"req"}`)},
			out:  Outcome{Status: 200, Body: []string{"not", "an", "object"}},
			want: "req",
		},
		{
			name: "none",
			out:  Outcome{Status: 200},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := r.Build(b, tt.snap, tt.out)
			require.True(t, ok)
			assert.Equal(t, tt.want, entry.ResourceID)
		})
	}
}

func TestInferResourceType(t *testing.T) {
	tests := map[string]string{
		"patients":      "Patient",
		"appointments":  "Appointment",
		"dental-chart":  "DentalChart",
		"lab-work":      "LabWork",
		"billing":       "Billing",
		"prescriptions": "Prescription",
		"":              "",
	}
	for module, want := range tests {
		assert.Equal(t, want, InferResourceType(module), module)
	}
}

func TestInferModule(t *testing.T) {
	assert.Equal(t, "patients", InferModule("/api/patients"))
	assert.Equal(t, "dental-chart", InferModule("/api/dental-chart/42/teeth"))
	assert.Equal(t, "", InferModule("/api"))
}
