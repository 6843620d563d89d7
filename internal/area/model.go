package area

import (
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes ordinary shared areas from per-user personal boxes.
// The variant is explicit on the row rather than inferred from the area name.
type Kind string

const (
	KindShared   Kind = "shared"
	KindPersonal Kind = "personal"
)

// PersonalBoxName is the reserved display name for personal boxes. Ordinary
// areas may not take this name.
const PersonalBoxName = "Personal box"

// Retention defaults in days.
const (
	DefaultExpiryDays     = 30
	NewAreaExpiryDays     = 7
	PersonalBoxExpiryDays = 60
)

// Area is a named shared attachment container.
type Area struct {
	ID          int64
	Name        string
	Description string
	Kind        Kind
	OwnerID     int64 // set iff Kind == KindPersonal

	AdminIDs       []int64
	ObserverIDs    []int64
	AccessUserIDs  []int64
	AccessGroupIDs []int64

	ExternalDownloadEnabled bool
	ExternalUploadEnabled   bool
	ExternalToken           string
	ExternalPassword        string
	ExternalPasswordHash    string

	ExpiryDays  int
	MaxUploadKB int64

	// Cached attachment stats, maintained by the content repository's
	// event callback.
	AttachmentsCount int
	AttachmentsBytes int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPersonal reports whether the area is a personal box.
func (a *Area) IsPersonal() bool {
	return a.Kind == KindPersonal
}

// IsAdmin reports whether the user is one of the area's admins.
func (a *Area) IsAdmin(userID int64) bool {
	return containsID(a.AdminIDs, userID)
}

// IsObserver reports whether the user is one of the area's observers.
func (a *Area) IsObserver(userID int64) bool {
	return containsID(a.ObserverIDs, userID)
}

// Capacity returns the hard byte ceiling for the area's stored attachments.
// The factor of 2048 (instead of 1024) mirrors the legacy 2x safety margin
// between per-file limit and total capacity.
func (a *Area) Capacity() int64 {
	return a.MaxUploadKB * 2048
}

// AllowedUploadBytes returns the maximum size of the next upload: the
// remaining capacity, but never more than the per-file limit.
func (a *Area) AllowedUploadBytes() int64 {
	remaining := a.Capacity() - a.AttachmentsBytes
	perFile := a.MaxUploadKB * 1024
	if remaining < perFile {
		perFile = remaining
	}
	if perFile < 0 {
		return 0
	}
	return perFile
}

// ExpiresAfter returns the retention window as a duration.
func (a *Area) ExpiresAfter() time.Duration {
	return time.Duration(a.ExpiryDays) * 24 * time.Hour
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// joinIDs serializes an id set to the comma-list column format.
func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// splitIDs parses the comma-list column format, skipping malformed parts.
func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
