package domain

import "time"

// AttachmentRecord describes one stored attachment.
type AttachmentRecord struct {
	Ordinal          int
	OriginalFilename string
	StoredPath       string // relative to the group directory
}

// Embed returns the wiki-style embed for the stored file.
func (a AttachmentRecord) Embed() string {
	return "![[" + a.StoredPath + "]]"
}

// DocumentRepository locates prior documents in a group directory.
type DocumentRepository interface {
	// FindLatest returns the most recent document written for sender whose
	// time lies within [ref-within, ref]. found is false when none qualifies.
	FindLatest(groupDir string, sender Sender, ref time.Time, within time.Duration) (path string, found bool, err error)
}
