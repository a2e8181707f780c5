package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"oden/internal/domain"
)

// headerBytes bounds how much of each document is read to find its frontmatter.
const headerBytes = 4096

var suffixPattern = regexp.MustCompile(`^-\d+$`)

// Repository scans a group directory for the documents a sender wrote.
// The filesystem is the only source of truth; nothing is cached.
type Repository struct {
	loc    *time.Location
	logger *slog.Logger
}

var _ domain.DocumentRepository = (*Repository)(nil)

func NewRepository(loc *time.Location, logger *slog.Logger) *Repository {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{loc: loc, logger: logger}
}

// FindLatest returns the newest document of sender in groupDir whose time is
// at most within before ref and not after it. Documents are identified by the
// frontmatter fileid; files without one are matched by their classic filename.
func (r *Repository) FindLatest(groupDir string, sender domain.Sender, ref time.Time, within time.Duration) (string, bool, error) {
	token := SenderToken(sender.Name, sender.Number)
	if token == "" {
		return "", false, nil
	}

	entries, err := os.ReadDir(groupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read group dir: %w", err)
	}

	ref = ref.In(r.loc)
	var (
		best     string
		bestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(groupDir, e.Name())
		docTime, ok := r.documentTime(path, e.Name(), token, ref)
		if !ok {
			continue
		}
		delta := ref.Sub(docTime)
		if delta < 0 || delta > within {
			continue
		}
		if best == "" || docTime.After(bestTime) || (docTime.Equal(bestTime) && path > best) {
			best, bestTime = path, docTime
		}
	}
	if best == "" {
		return "", false, nil
	}
	r.logger.Debug("found prior document", "path", best, "age", ref.Sub(bestTime))
	return best, true, nil
}

// documentTime reports when the document was started, if it belongs to token.
func (r *Repository) documentTime(path, filename, token string, ref time.Time) (time.Time, bool) {
	header, err := readHeader(path)
	if err != nil {
		r.logger.Debug("skipping unreadable document", "path", path, "error", err)
		return time.Time{}, false
	}

	if meta, ok := parseFrontmatter[documentMeta](header); ok && meta.FileID != "" {
		tnr, rest, ok := splitIdentifier(strings.TrimSpace(meta.FileID))
		if !ok || rest != token {
			return time.Time{}, false
		}
		if meta.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(meta.Timestamp)); err == nil {
				return ts.In(r.loc), true
			}
		}
		return resolveTimeToken(tnr, ref)
	}

	// No fileid: fall back to the classic filename, optionally with a -N suffix.
	tnr, rest, ok := splitIdentifier(strings.TrimSuffix(filename, ".md"))
	if !ok {
		return time.Time{}, false
	}
	if rest != token {
		suffix, found := strings.CutPrefix(rest, token)
		if !found || !suffixPattern.MatchString(suffix) {
			return time.Time{}, false
		}
	}
	return resolveTimeToken(tnr, ref)
}

// splitIdentifier splits "DDHHMM-rest" into its parts.
func splitIdentifier(id string) (tnr, rest string, ok bool) {
	tnr, rest, found := strings.Cut(id, "-")
	if !found || len(tnr) != 6 {
		return "", "", false
	}
	if _, err := strconv.Atoi(tnr); err != nil {
		return "", "", false
	}
	return tnr, rest, true
}

// resolveTimeToken turns DDHHMM into the latest matching time not after ref,
// looking back one month when the day lies in the future.
func resolveTimeToken(tnr string, ref time.Time) (time.Time, bool) {
	day, _ := strconv.Atoi(tnr[0:2])
	hour, _ := strconv.Atoi(tnr[2:4])
	minute, _ := strconv.Atoi(tnr[4:6])
	if day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	for back := 0; back <= 1; back++ {
		first := time.Date(ref.Year(), ref.Month()-time.Month(back), 1, 0, 0, 0, 0, ref.Location())
		t := time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, ref.Location())
		if t.Month() != first.Month() {
			continue // day does not exist in that month
		}
		if !t.After(ref) {
			return t, true
		}
	}
	return time.Time{}, false
}

func readHeader(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, headerBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return string(buf[:n]), nil
}
