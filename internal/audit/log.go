// Package audit provides the append-only per-area event log and the
// debounce query that drives digest notifications.
package audit

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// flushBatchSize bounds the number of ids in a single flush-mark statement.
const flushBatchSize = 500

// Log handles database operations for audit entries.
type Log struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLog creates a new audit log.
func NewLog(db *sql.DB, log zerolog.Logger) *Log {
	return &Log{db: db, log: log.With().Str("component", "auditlog").Logger()}
}

// Append persists a new entry. The notified flag is forced to false; the
// timestamp is filled in when absent. Exactly one of ByUserID and
// ByExternal must identify the actor.
func (l *Log) Append(e *Entry) error {
	if (e.ByUserID == 0) == (e.ByExternal == "") {
		return fmt.Errorf("audit entry for area %d: exactly one actor required", e.AreaID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.Notified = false

	result, err := l.db.Exec(`
		INSERT INTO audit_entries (area_id, event_type, by_user_id, by_external,
			upload_user_id, filename, description, old_filename, old_description,
			notified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, e.AreaID, string(e.EventType), nullableID(e.ByUserID), e.ByExternal,
		nullableID(e.UploadUserID), e.Filename, e.Description, e.OldFilename, e.OldDescription,
		e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry for area %d: %w", e.AreaID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get audit entry id: %w", err)
	}
	e.ID = id
	return nil
}

// QueuedFlushable returns the area's unflushed non-download entries, but
// only once the area has been quiet for the whole debounce window. Any
// unflushed entry younger than the window, downloads included, keeps the
// batch warming up and an empty slice is returned.
func (l *Log) QueuedFlushable(areaID int64, now time.Time, window time.Duration) ([]*Entry, error) {
	var newest sql.NullTime
	err := l.db.QueryRow(`
		SELECT MAX(created_at) FROM audit_entries
		WHERE area_id = ? AND notified = 0
	`, areaID).Scan(&newest)
	if err != nil {
		return nil, fmt.Errorf("check audit debounce for area %d: %w", areaID, err)
	}
	if !newest.Valid || newest.Time.After(now.Add(-window)) {
		return nil, nil
	}

	rows, err := l.db.Query(`
		SELECT `+entryColumns+` FROM audit_entries
		WHERE area_id = ? AND notified = 0 AND event_type NOT IN (?, ?, ?)
		ORDER BY created_at, id
	`, areaID, string(EventDownload), string(EventDownloadMulti), string(EventDownloadAll))
	if err != nil {
		return nil, fmt.Errorf("query flushable audit entries for area %d: %w", areaID, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// DownloadEntries returns all download-type entries of the area regardless
// of the notified flag.
func (l *Log) DownloadEntries(areaID int64) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT `+entryColumns+` FROM audit_entries
		WHERE area_id = ? AND event_type IN (?, ?, ?)
		ORDER BY created_at, id
	`, areaID, string(EventDownload), string(EventDownloadMulti), string(EventDownloadAll))
	if err != nil {
		return nil, fmt.Errorf("query download audit entries for area %d: %w", areaID, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MarkFlushed sets the notified flag on the given entries in bounded
// batches, all inside one transaction.
func (l *Log) MarkFlushed(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush-mark: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(entries); start += flushBatchSize {
		end := start + flushBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, e := range batch {
			args[i] = e.ID
		}
		if _, err := tx.Exec(`UPDATE audit_entries SET notified = 1 WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("mark audit entries flushed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush-mark: %w", err)
	}

	for _, e := range entries {
		e.Notified = true
	}
	return nil
}

// PurgeOlderThan bulk-deletes entries created before the cutoff and returns
// the number removed.
func (l *Log) PurgeOlderThan(cutoff time.Time) (int64, error) {
	result, err := l.db.Exec(`DELETE FROM audit_entries WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("purged old audit entries")
	}
	return n, nil
}

const entryColumns = `id, area_id, event_type, by_user_id, by_external,
	upload_user_id, filename, description, old_filename, old_description,
	notified, created_at`

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var eventType string
		var byUser, uploadUser sql.NullInt64
		if err := rows.Scan(&e.ID, &e.AreaID, &eventType, &byUser, &e.ByExternal,
			&uploadUser, &e.Filename, &e.Description, &e.OldFilename, &e.OldDescription,
			&e.Notified, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventType = EventType(eventType)
		if byUser.Valid {
			e.ByUserID = byUser.Int64
		}
		if uploadUser.Valid {
			e.UploadUserID = uploadUser.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
