package audit

import "time"

// EventType classifies an audit entry.
type EventType string

const (
	EventUpload        EventType = "UPLOAD"
	EventDownload      EventType = "DOWNLOAD"
	EventDownloadMulti EventType = "DOWNLOAD_MULTI"
	EventDownloadAll   EventType = "DOWNLOAD_ALL"
	EventModification  EventType = "MODIFICATION"
	EventDelete        EventType = "DELETE"
)

// IsDownload reports whether the event is one of the download variants.
// Downloads appear in digests as context only and never trigger one.
func (t EventType) IsDownload() bool {
	return t == EventDownload || t == EventDownloadMulti || t == EventDownloadAll
}

// Entry is one append-only audit record. Exactly one of ByUserID and
// ByExternal identifies the actor. The notified flag is the only field
// ever updated after insert.
type Entry struct {
	ID        int64
	AreaID    int64
	EventType EventType

	ByUserID   int64  // internal actor, 0 if external
	ByExternal string // external actor descriptor, empty if internal

	// UploadUserID is the original uploader, retained on modification and
	// delete events so that user can still be notified after the file is
	// gone.
	UploadUserID int64

	Filename       string
	Description    string
	OldFilename    string
	OldDescription string

	Notified  bool
	CreatedAt time.Time
}
