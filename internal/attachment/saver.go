// Package attachment stores message attachments next to their document.
package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"oden/internal/domain"
	"oden/internal/vault"
)

const defaultFetchTimeout = 10 * time.Second

// FilenameCleaner turns an untrusted attachment name into a safe base name.
type FilenameCleaner interface {
	CleanFilename(ctx context.Context, subject, name string) string
}

// SaverConfig configures a Saver.
type SaverConfig struct {
	Fetcher      domain.AttachmentFetcher
	Cleaner      FilenameCleaner // optional; vault.SanitizeFilename when nil
	Location     *time.Location
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Saver writes the attachments of one message into a subdirectory it owns.
type Saver struct {
	fetcher      domain.AttachmentFetcher
	cleaner      FilenameCleaner
	loc          *time.Location
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// Result lists what was stored and how many attachments were skipped.
type Result struct {
	Records []domain.AttachmentRecord
	Skipped int
	Dir     string // per-message subdirectory, relative to the group directory
}

// Embeds returns the wiki embeds for the stored attachments, in order.
func (r Result) Embeds() []string {
	out := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		out = append(out, rec.Embed())
	}
	return out
}

func NewSaver(cfg SaverConfig) *Saver {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Saver{
		fetcher:      cfg.Fetcher,
		cleaner:      cfg.Cleaner,
		loc:          cfg.Location,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
	}
}

// Save stores ev's attachments under groupDir. Attachments whose content
// cannot be obtained or written are skipped and logged; the rest keep their
// original order and ordinal. Only a failure to create the subdirectory is
// returned as an error.
func (s *Saver) Save(ctx context.Context, groupDir string, ev domain.MessageEvent) (Result, error) {
	var res Result
	if len(ev.Attachments) == 0 {
		return res, nil
	}

	sent := ev.SentAt().In(s.loc)
	subdirBase := sent.Format("20060102150405") + "_" + vault.FileID(sent, s.loc, ev.SourceName, ev.SourceNumber)
	subdir := ""

	for i, att := range ev.Attachments {
		ordinal := i + 1
		log := s.logger.With("group", ev.GroupName(), "ordinal", ordinal, "attachment_id", att.ID)

		name := att.Filename
		if name == "" {
			name = att.ID
		}
		if name == "" {
			log.Warn("attachment skipped: missing filename and id")
			res.Skipped++
			continue
		}

		data, err := s.content(ctx, ev.GroupID, att)
		if err != nil {
			log.Warn("attachment skipped: no data", "error", err)
			res.Skipped++
			continue
		}

		if subdir == "" {
			subdir, err = s.createSubdir(groupDir, subdirBase)
			if err != nil {
				return res, err
			}
			res.Dir = subdir
		}

		safe := s.clean(ctx, ev.GroupName(), name)
		stored := fmt.Sprintf("%d_%s", ordinal, safe)
		if err := writeNew(filepath.Join(groupDir, subdir, stored), data); err != nil {
			log.Error("attachment skipped: write failed", "error", err)
			res.Skipped++
			continue
		}

		res.Records = append(res.Records, domain.AttachmentRecord{
			Ordinal:          ordinal,
			OriginalFilename: safe,
			StoredPath:       subdir + "/" + stored,
		})
		log.Info("saved attachment", "path", subdir+"/"+stored, "bytes", len(data))
	}
	return res, nil
}

// Discard removes the subdirectory a Save call created, with everything in
// it. It is used when the document that would embed the files is never written.
func (s *Saver) Discard(groupDir string, res Result) error {
	if res.Dir == "" {
		return nil
	}
	if res.Dir != filepath.Base(res.Dir) || res.Dir == "." || res.Dir == ".." {
		return fmt.Errorf("refusing to remove %q: not a saver subdirectory", res.Dir)
	}
	if err := os.RemoveAll(filepath.Join(groupDir, res.Dir)); err != nil {
		return fmt.Errorf("remove attachment dir: %w", err)
	}
	s.logger.Info("discarded attachments", "dir", res.Dir, "files", len(res.Records))
	return nil
}

func (s *Saver) content(ctx context.Context, groupID string, att domain.Attachment) ([]byte, error) {
	encoded := att.Data
	if encoded == "" {
		if att.ID == "" {
			return nil, errors.New("no inline data and no id to fetch")
		}
		if s.fetcher == nil {
			return nil, errors.New("no fetcher configured")
		}
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
		fetched, err := s.fetcher.FetchAttachment(fetchCtx, att.ID, groupID)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		encoded = fetched
	}
	if encoded == "" {
		return nil, errors.New("empty data")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return data, nil
}

func (s *Saver) clean(ctx context.Context, subject, name string) string {
	if s.cleaner != nil {
		return s.cleaner.CleanFilename(ctx, subject, name)
	}
	return vault.SanitizeFilename(name)
}

// createSubdir creates a fresh subdirectory so no other message shares it.
func (s *Saver) createSubdir(groupDir, base string) (string, error) {
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return "", fmt.Errorf("create group dir: %w", err)
	}
	for attempt := 0; attempt < 16; attempt++ {
		name, err := vault.UniqueFilename(groupDir, base)
		if err != nil {
			return "", err
		}
		err = os.Mkdir(filepath.Join(groupDir, name), 0o755)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create attachment dir: %w", err)
		}
	}
	return "", fmt.Errorf("create attachment dir %s: no free name", base)
}

func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
