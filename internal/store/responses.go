package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"oden/internal/domain"
)

var _ domain.ResponseStore = (*SQLiteStore)(nil)

// NormalizeKeyword trims, drops a leading "#" and lower-cases a keyword.
func NormalizeKeyword(k string) string {
	k = strings.TrimSpace(k)
	k = strings.TrimPrefix(k, "#")
	return strings.ToLower(k)
}

func normalizeKeywords(keywords []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, k := range keywords {
		n := NormalizeKeyword(k)
		if n == "" {
			continue
		}
		if strings.IndexFunc(n, unicode.IsSpace) >= 0 || strings.ContainsAny(n, `/\`) || strings.Contains(n, "..") {
			return nil, fmt.Errorf("%w: %q", ErrBadKeyword, k)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one keyword is required", ErrBadKeyword)
	}
	return out, nil
}

// Lookup returns the body bound to keyword, case-insensitively.
func (s *SQLiteStore) Lookup(ctx context.Context, keyword string) (string, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT r.body FROM response_keywords k JOIN responses r ON r.id = k.response_id WHERE k.keyword = ?`,
		NormalizeKeyword(keyword),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup response: %w", err)
	}
	return body, true, nil
}

// AddResponse binds keywords to body. Fails with ErrKeywordTaken if any
// keyword already has a binding.
func (s *SQLiteStore) AddResponse(ctx context.Context, keywords []string, body string) (int64, error) {
	kws, err := normalizeKeywords(keywords)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(body) == "" {
		return 0, errors.New("response body is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if taken, err := takenKeyword(ctx, tx, kws, 0); err != nil {
		return 0, err
	} else if taken != "" {
		return 0, fmt.Errorf("%w: %s", ErrKeywordTaken, taken)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO responses (body, created_at, updated_at) VALUES (?, ?, ?)`, body, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert response: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := insertKeywords(ctx, tx, id, kws); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// UpdateResponse replaces the keywords and body of an existing binding.
func (s *SQLiteStore) UpdateResponse(ctx context.Context, id int64, keywords []string, body string) error {
	kws, err := normalizeKeywords(keywords)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE responses SET body = ?, updated_at = ? WHERE id = ?`, body, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update response: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("response %d: %w", id, ErrNotFound)
	}
	if taken, err := takenKeyword(ctx, tx, kws, id); err != nil {
		return err
	} else if taken != "" {
		return fmt.Errorf("%w: %s", ErrKeywordTaken, taken)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM response_keywords WHERE response_id = ?`, id); err != nil {
		return err
	}
	if err := insertKeywords(ctx, tx, id, kws); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteResponse removes a binding and its keywords.
func (s *SQLiteStore) DeleteResponse(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM response_keywords WHERE response_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("response %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// ListResponses returns all bindings ordered by id, keywords sorted.
func (s *SQLiteStore) ListResponses(ctx context.Context) ([]domain.ResponseBinding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.body, r.created_at, r.updated_at, COALESCE(k.keyword, '')
		 FROM responses r LEFT JOIN response_keywords k ON k.response_id = r.id
		 ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []domain.ResponseBinding
	for rows.Next() {
		var (
			b       domain.ResponseBinding
			keyword string
		)
		if err := rows.Scan(&b.ID, &b.Body, &b.CreatedAt, &b.UpdatedAt, &keyword); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].ID == b.ID {
			if keyword != "" {
				out[n-1].Keywords = append(out[n-1].Keywords, keyword)
			}
			continue
		}
		if keyword != "" {
			b.Keywords = []string{keyword}
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		sort.Strings(out[i].Keywords)
	}
	return out, nil
}

// ImportResponses upserts bindings: a binding sharing any keyword with an
// existing one replaces it, otherwise it is added. Returns added and updated counts.
func (s *SQLiteStore) ImportResponses(ctx context.Context, bindings []domain.ResponseBinding) (added, updated int, err error) {
	for _, b := range bindings {
		kws, err := normalizeKeywords(b.Keywords)
		if err != nil {
			return added, updated, err
		}
		id, err := s.responseIDFor(ctx, kws)
		if err != nil {
			return added, updated, err
		}
		if id == 0 {
			if _, err := s.AddResponse(ctx, kws, b.Body); err != nil {
				return added, updated, err
			}
			added++
			continue
		}
		// Merge keywords so existing aliases are kept.
		existing, err := s.keywordsOf(ctx, id)
		if err != nil {
			return added, updated, err
		}
		if err := s.UpdateResponse(ctx, id, append(existing, kws...), b.Body); err != nil {
			return added, updated, err
		}
		updated++
	}
	return added, updated, nil
}

func (s *SQLiteStore) responseIDFor(ctx context.Context, kws []string) (int64, error) {
	for _, k := range kws {
		var id int64
		err := s.db.QueryRowContext(ctx, `SELECT response_id FROM response_keywords WHERE keyword = ?`, k).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return id, nil
	}
	return 0, nil
}

func (s *SQLiteStore) keywordsOf(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT keyword FROM response_keywords WHERE response_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// takenKeyword returns the first keyword bound to a response other than self.
func takenKeyword(ctx context.Context, tx *sql.Tx, kws []string, self int64) (string, error) {
	for _, k := range kws {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT response_id FROM response_keywords WHERE keyword = ?`, k).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", err
		}
		if id != self {
			return k, nil
		}
	}
	return "", nil
}

func insertKeywords(ctx context.Context, tx *sql.Tx, id int64, kws []string) error {
	for _, k := range kws {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO response_keywords (keyword, response_id) VALUES (?, ?)`, k, id); err != nil {
			return fmt.Errorf("insert keyword %q: %w", k, err)
		}
	}
	return nil
}
