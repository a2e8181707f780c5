package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"oden/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "oden.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Migrations ---

func TestRunMigrations_FreshDB(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}
	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
	for _, table := range []string{"responses", "response_keywords", "audit_log"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestGetSchemaVersion_EmptyDB(t *testing.T) {
	db, _ := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	defer db.Close()
	v, err := GetSchemaVersion(db)
	if err != nil || v != 0 {
		t.Fatalf("got (%d, %v), want (0, nil)", v, err)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oden.db")
	ctx := context.Background()

	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddResponse(ctx, []string{"help"}, "Hjälp"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, found, _ := s.Lookup(ctx, "help"); !found {
		t.Fatal("binding lost after reopen")
	}
}

// --- Responses ---

func TestLookup_CaseInsensitive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.AddResponse(ctx, []string{"Help", "HJÄLP"}, "Skriv ++ för att lägga till"); err != nil {
		t.Fatalf("add: %v", err)
	}

	for _, kw := range []string{"help", "HELP", "hjälp", "#help"} {
		body, found, err := s.Lookup(ctx, kw)
		if err != nil {
			t.Fatalf("lookup %q: %v", kw, err)
		}
		if !found || body != "Skriv ++ för att lägga till" {
			t.Fatalf("lookup %q = (%q, %v)", kw, body, found)
		}
	}
}

func TestLookup_Miss(t *testing.T) {
	s := testStore(t)
	_, found, err := s.Lookup(context.Background(), "nothing")
	if err != nil || found {
		t.Fatalf("got (%v, %v), want miss without error", found, err)
	}
}

func TestAddResponse_KeywordTaken(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.AddResponse(ctx, []string{"help"}, "a")

	_, err := s.AddResponse(ctx, []string{"other", "HELP"}, "b")
	if !errors.Is(err, ErrKeywordTaken) {
		t.Fatalf("expected ErrKeywordTaken, got %v", err)
	}
	// The failed add must not leave "other" behind.
	if _, found, _ := s.Lookup(ctx, "other"); found {
		t.Fatal("partial insert left a keyword behind")
	}
}

func TestAddResponse_BadKeyword(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, kws := range [][]string{{"two words"}, {"../x"}, {""}, nil} {
		if _, err := s.AddResponse(ctx, kws, "body"); !errors.Is(err, ErrBadKeyword) {
			t.Errorf("%v: expected ErrBadKeyword, got %v", kws, err)
		}
	}
}

func TestAddResponse_EmptyBody(t *testing.T) {
	s := testStore(t)
	if _, err := s.AddResponse(context.Background(), []string{"x"}, "  "); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestUpdateResponse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id, _ := s.AddResponse(ctx, []string{"help"}, "old")

	if err := s.UpdateResponse(ctx, id, []string{"help", "h"}, "new"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if body, _, _ := s.Lookup(ctx, "h"); body != "new" {
		t.Fatalf("alias lookup = %q", body)
	}
	if err := s.UpdateResponse(ctx, 999, []string{"x"}, "y"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteResponse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id, _ := s.AddResponse(ctx, []string{"help", "h"}, "body")

	if err := s.DeleteResponse(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Lookup(ctx, "h"); found {
		t.Fatal("keyword survived delete")
	}
	if err := s.DeleteResponse(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListResponses(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.AddResponse(ctx, []string{"zeta", "alpha"}, "first")
	s.AddResponse(ctx, []string{"help"}, "second")

	list, err := s.ListResponses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(list))
	}
	if list[0].Body != "first" || len(list[0].Keywords) != 2 || list[0].Keywords[0] != "alpha" {
		t.Fatalf("unexpected first binding: %+v", list[0])
	}
}

func TestImportResponses_AddsAndMerges(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.AddResponse(ctx, []string{"help", "h"}, "old")

	added, updated, err := s.ImportResponses(ctx, []domain.ResponseBinding{
		{Keywords: []string{"HELP", "hjälp"}, Body: "new help"},
		{Keywords: []string{"status"}, Body: "all good"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if added != 1 || updated != 1 {
		t.Fatalf("added=%d updated=%d", added, updated)
	}
	for _, kw := range []string{"h", "help", "hjälp"} {
		if body, _, _ := s.Lookup(ctx, kw); body != "new help" {
			t.Errorf("%s -> %q", kw, body)
		}
	}
	if body, _, _ := s.Lookup(ctx, "status"); body != "all good" {
		t.Fatalf("status -> %q", body)
	}
}

// --- Audit ---

func TestLogAudit_RecentAudit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.LogAudit(ctx, domain.AuditEntry{Action: "command_blocked", Subject: "grp", Input: "../x", Result: "blocked"})
	s.LogAudit(ctx, domain.AuditEntry{Action: "filename_sanitized", Subject: "grp", Input: "../y", Result: "sanitized"})

	recs, err := s.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Entry.Action != "filename_sanitized" {
		t.Fatalf("expected newest first, got %+v", recs[0])
	}
}
