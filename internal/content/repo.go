// Package content abstracts attachment byte storage. The database keeps
// area and audit metadata; this repository keeps the bytes. The two are
// reconciled by the retention job.
package content

import (
	"io"
	"time"
)

// Attachment describes one stored file.
type Attachment struct {
	ID          string // assigned by the repository
	AreaID      int64
	Filename    string
	Description string
	SizeBytes   int64
	UploaderID  int64 // 0 for external uploads
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LastTouched returns the later of created and updated, the timestamp the
// retention clock runs against.
func (a *Attachment) LastTouched() time.Time {
	if a.UpdatedAt.After(a.CreatedAt) {
		return a.UpdatedAt
	}
	return a.CreatedAt
}

// ChangeFunc is invoked after every content mutation with the area's fresh
// attachment stats. Wired to the area store's cached counters.
type ChangeFunc func(areaID int64, count int, bytes int64)

// Repository is the boundary contract to attachment storage.
type Repository interface {
	// Save stores the attachment bytes and metadata, assigning its ID.
	Save(att *Attachment, r io.Reader) error
	// Open returns the attachment bytes and metadata.
	Open(areaID int64, id string) (io.ReadCloser, *Attachment, error)
	// Get returns attachment metadata.
	Get(areaID int64, id string) (*Attachment, error)
	// List returns all attachments of an area.
	List(areaID int64) ([]*Attachment, error)
	// UpdateMeta rewrites an attachment's filename and description.
	UpdateMeta(att *Attachment) error
	// Delete removes one attachment.
	Delete(areaID int64, id string) error
	// Stats returns the area's attachment count and byte total.
	Stats(areaID int64) (count int, bytes int64, err error)
	// AreaNodes lists the names of the direct child nodes under the
	// repository root. Each name encodes an area id; parsing is the
	// caller's concern.
	AreaNodes() ([]string, error)
	// RemoveNode deletes an entire child node and reports how many files
	// and bytes were reclaimed.
	RemoveNode(name string) (files int, bytes int64, err error)
	// Cleanup runs the repository's idle housekeeping.
	Cleanup() error
}
