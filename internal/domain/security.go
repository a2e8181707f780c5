package domain

import "context"

type SecurityAction string

const (
	ActionAllow SecurityAction = "allow"
	ActionBlock SecurityAction = "block"
)

// AuditEntry records a security-relevant decision.
type AuditEntry struct {
	Action  string // command_blocked | filename_sanitized
	Subject string // group or sender context
	Input   string
	Result  string // allowed | blocked | sanitized
	Details string
}

// AuditLogger persists audit entries.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry AuditEntry) error
}
