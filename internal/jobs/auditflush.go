package jobs

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/audit"
	"github.com/transferbox/transferbox/internal/notify"
)

// AuditFlush walks all areas, sends digest mails for batches whose debounce
// window has elapsed, marks them flushed and finally purges audit entries
// beyond the retention horizon.
type AuditFlush struct {
	areas     *area.Store
	auditLog  *audit.Log
	engine    *notify.Engine
	window    time.Duration
	retention time.Duration
	log       zerolog.Logger

	now func() time.Time
}

// NewAuditFlush creates the audit notification job.
func NewAuditFlush(areas *area.Store, auditLog *audit.Log, engine *notify.Engine, window, retention time.Duration, log zerolog.Logger) *AuditFlush {
	return &AuditFlush{
		areas:     areas,
		auditLog:  auditLog,
		engine:    engine,
		window:    window,
		retention: retention,
		log:       log.With().Str("job", "auditflush").Logger(),
		now:       time.Now,
	}
}

// Run executes one pass. An idle pass (no flushable batches anywhere) is
// normal, not an error.
func (j *AuditFlush) Run() {
	now := j.now()

	areas, err := j.areas.List()
	if err != nil {
		j.log.Error().Err(err).Msg("listing areas failed, skipping run")
		return
	}

	flushedAreas, mailsSent, failures := 0, 0, 0
	for _, a := range areas {
		sent, err := j.flushArea(a, now)
		if err != nil {
			failures++
			j.log.Error().Err(err).Int64("area", a.ID).Msg("area flush failed, continuing")
			continue
		}
		if sent >= 0 {
			flushedAreas++
			mailsSent += sent
		}
	}

	purged, err := j.auditLog.PurgeOlderThan(now.Add(-j.retention))
	if err != nil {
		j.log.Error().Err(err).Msg("audit purge failed")
	}

	if flushedAreas > 0 || failures > 0 || purged > 0 {
		j.log.Info().
			Int("areas_flushed", flushedAreas).
			Int("mails_sent", mailsSent).
			Int("failures", failures).
			Int64("entries_purged", purged).
			Msg("audit flush summary")
	}
}

// flushArea returns the number of mails sent, or -1 if there was nothing to
// flush. A batch with no reachable recipient is still marked flushed.
func (j *AuditFlush) flushArea(a *area.Area, now time.Time) (int, error) {
	entries, err := j.auditLog.QueuedFlushable(a.ID, now, j.window)
	if err != nil {
		return -1, err
	}
	if len(entries) == 0 {
		return -1, nil
	}

	downloads, err := j.auditLog.DownloadEntries(a.ID)
	if err != nil {
		return -1, err
	}

	sent, err := j.engine.SendDigests(a, entries, downloads)
	if err != nil {
		return -1, err
	}

	if err := j.auditLog.MarkFlushed(entries); err != nil {
		return -1, err
	}
	return sent, nil
}
