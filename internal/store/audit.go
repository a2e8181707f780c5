package store

import (
	"context"
	"fmt"
	"time"

	"oden/internal/domain"
)

// AuditRecord is a stored audit entry.
type AuditRecord struct {
	ID        int64
	Entry     domain.AuditEntry
	CreatedAt time.Time
}

var _ domain.AuditLogger = (*SQLiteStore)(nil)

func (s *SQLiteStore) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (action, subject, input, result, details) VALUES (?, ?, ?, ?, ?)`,
		entry.Action, entry.Subject, entry.Input, entry.Result, entry.Details,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// RecentAudit returns up to limit entries, newest first.
func (s *SQLiteStore) RecentAudit(ctx context.Context, limit int) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, COALESCE(subject, ''), COALESCE(input, ''), COALESCE(result, ''), COALESCE(details, ''), created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(&r.ID, &r.Entry.Action, &r.Entry.Subject, &r.Entry.Input,
			&r.Entry.Result, &r.Entry.Details, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
