package security

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"oden/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingAudit keeps audit entries in memory.
type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *recordingAudit) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func TestCheckCommand_AllowsPlainKeyword(t *testing.T) {
	audit := &recordingAudit{}
	g := NewGuard(audit, testLogger())

	for _, tok := range []string{"help", "status", "Räddning", "a.b"} {
		if action := g.CheckCommand(context.Background(), "grp", tok); action != domain.ActionAllow {
			t.Fatalf("%q: expected allow, got %s", tok, action)
		}
	}
	if len(audit.entries) != 0 {
		t.Fatalf("expected no audit entries, got %d", len(audit.entries))
	}
}

func TestCheckCommand_BlocksTraversal(t *testing.T) {
	audit := &recordingAudit{}
	g := NewGuard(audit, testLogger())

	for _, tok := range []string{"../../etc/passwd", "a/b", `a\b`, "..", "x..y"} {
		if action := g.CheckCommand(context.Background(), "grp", tok); action != domain.ActionBlock {
			t.Fatalf("%q: expected block, got %s", tok, action)
		}
	}
	if len(audit.entries) != 5 {
		t.Fatalf("expected 5 audit entries, got %d", len(audit.entries))
	}
	if audit.entries[0].Action != "command_blocked" || audit.entries[0].Result != "blocked" {
		t.Fatalf("unexpected entry: %+v", audit.entries[0])
	}
}

func TestCleanFilename_AuditsTraversal(t *testing.T) {
	audit := &recordingAudit{}
	g := NewGuard(audit, testLogger())

	got := g.CleanFilename(context.Background(), "grp", "../../../etc/passwd")
	if got != "passwd" {
		t.Fatalf("got %q", got)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != "filename_sanitized" {
		t.Fatalf("unexpected audit entries: %+v", audit.entries)
	}
}

func TestCleanFilename_PlainNameNotAudited(t *testing.T) {
	audit := &recordingAudit{}
	g := NewGuard(audit, testLogger())

	if got := g.CleanFilename(context.Background(), "grp", "bild.jpg"); got != "bild.jpg" {
		t.Fatalf("got %q", got)
	}
	if len(audit.entries) != 0 {
		t.Fatal("plain names should not be audited")
	}
}

func TestGuard_NilAuditLogger(t *testing.T) {
	g := NewGuard(nil, testLogger())
	if g.CheckCommand(context.Background(), "grp", "../x") != domain.ActionBlock {
		t.Fatal("expected block without audit logger")
	}
}
