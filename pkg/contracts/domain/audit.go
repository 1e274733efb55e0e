package domain

import "time"

// AuditAction names the kind of mutation an audit entry records
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
	AuditActionLogin  AuditAction = "LOGIN"
)

// AuditLogEntry is a best-effort record of a successful state-changing request
type AuditLogEntry struct {
	ID           string         `json:"id,omitempty"`
	User         string         `json:"user,omitempty"`
	Action       AuditAction    `json:"action"`
	Module       string         `json:"module"`
	ResourceID   string         `json:"resourceId,omitempty"`
	ResourceType string         `json:"resourceType"`
	Changes      map[string]any `json:"changes,omitempty"`
	IPAddress    string         `json:"ipAddress"`
	UserAgent    string         `json:"userAgent"`
	Timestamp    time.Time      `json:"timestamp"`
}

// AuditFilter selects audit entries for reporting
type AuditFilter struct {
	Module string
	Action AuditAction
	User   string
	Limit  int
}
