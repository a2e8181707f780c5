package security

import (
	"context"
	"log/slog"
	"strings"

	"oden/internal/domain"
	"oden/internal/vault"
)

// traversalMarkers are rejected in command tokens and flagged in filenames.
var traversalMarkers = []string{"/", `\`, ".."}

// Guard screens untrusted input that could reach the filesystem or the
// response lookup. Rejections are logged and written to the audit log.
type Guard struct {
	auditLogger domain.AuditLogger
	logger      *slog.Logger
}

func NewGuard(auditLogger domain.AuditLogger, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{auditLogger: auditLogger, logger: logger}
}

// CheckCommand decides whether a command token may be looked up.
func (g *Guard) CheckCommand(ctx context.Context, subject, token string) domain.SecurityAction {
	if marker, ok := containsTraversal(token); ok {
		g.logger.Warn("command BLOCKED: path traversal",
			"subject", subject,
			"token", token,
			"marker", marker,
		)
		g.logAction(ctx, "command_blocked", subject, token, "blocked", "traversal marker: "+marker)
		return domain.ActionBlock
	}
	return domain.ActionAllow
}

// CleanFilename returns a safe base name for an attachment. Names that tried
// to escape their directory are logged and audited.
func (g *Guard) CleanFilename(ctx context.Context, subject, name string) string {
	safe := vault.SanitizeFilename(name)
	if marker, ok := containsTraversal(name); ok {
		g.logger.Warn("attachment filename sanitized: path traversal",
			"subject", subject,
			"filename", name,
			"stored_as", safe,
		)
		g.logAction(ctx, "filename_sanitized", subject, name, "sanitized", "traversal marker: "+marker)
	}
	return safe
}

func (g *Guard) logAction(ctx context.Context, action, subject, input, result, details string) {
	if g.auditLogger == nil {
		return
	}
	err := g.auditLogger.LogAudit(ctx, domain.AuditEntry{
		Action:  action,
		Subject: subject,
		Input:   input,
		Result:  result,
		Details: details,
	})
	if err != nil {
		g.logger.Error("audit log write failed", "action", action, "error", err)
	}
}

func containsTraversal(s string) (string, bool) {
	for _, m := range traversalMarkers {
		if strings.Contains(s, m) {
			return m, true
		}
	}
	return "", false
}
