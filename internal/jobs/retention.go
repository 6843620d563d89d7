package jobs

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/content"
)

// Retention expires attachments past their area's retention window and
// reconciles the content repository against the set of live areas, removing
// subtrees whose owning area row no longer exists.
type Retention struct {
	areas *area.Store
	repo  content.Repository
	log   zerolog.Logger

	now func() time.Time
}

// RetentionReport summarizes one run.
type RetentionReport struct {
	DeletedFiles   int
	DeletedBytes   int64
	PreservedFiles int
	PreservedBytes int64
	OrphanNodes    int
	OrphanFiles    int
	OrphanBytes    int64
	Failures       int
}

// NewRetention creates the retention and reconciliation job.
func NewRetention(areas *area.Store, repo content.Repository, log zerolog.Logger) *Retention {
	return &Retention{
		areas: areas,
		repo:  repo,
		log:   log.With().Str("job", "retention").Logger(),
		now:   time.Now,
	}
}

// Run executes one pass.
func (j *Retention) Run() {
	report := j.RunOnce()
	j.log.Info().
		Int("deleted_files", report.DeletedFiles).
		Int64("deleted_bytes", report.DeletedBytes).
		Int("preserved_files", report.PreservedFiles).
		Int64("preserved_bytes", report.PreservedBytes).
		Int("orphan_nodes", report.OrphanNodes).
		Int("orphan_files", report.OrphanFiles).
		Int64("orphan_bytes", report.OrphanBytes).
		Int("failures", report.Failures).
		Msg("retention summary")
}

// RunOnce executes one pass and returns its report.
func (j *Retention) RunOnce() *RetentionReport {
	report := &RetentionReport{}
	now := j.now()

	areas, err := j.areas.List()
	if err != nil {
		j.log.Error().Err(err).Msg("listing areas failed, skipping run")
		report.Failures++
		return report
	}

	// Pass 1: expire attachments per area. One broken area must not stop
	// the others.
	live := make(map[int64]bool, len(areas))
	for _, a := range areas {
		live[a.ID] = true
		if err := j.expireArea(a, now, report); err != nil {
			report.Failures++
			j.log.Error().Err(err).Int64("area", a.ID).Msg("expiry pass failed, continuing")
		}
	}

	// Pass 2: remove repository subtrees whose area row is gone.
	j.reconcileOrphans(live, report)

	if err := j.repo.Cleanup(); err != nil {
		j.log.Warn().Err(err).Msg("repository cleanup failed")
	}
	return report
}

func (j *Retention) expireArea(a *area.Area, now time.Time, report *RetentionReport) error {
	atts, err := j.repo.List(a.ID)
	if err != nil {
		return err
	}

	maxAge := a.ExpiresAfter()
	for _, att := range atts {
		if now.Sub(att.LastTouched()) > maxAge {
			if err := j.repo.Delete(a.ID, att.ID); err != nil {
				return err
			}
			report.DeletedFiles++
			report.DeletedBytes += att.SizeBytes
		} else {
			report.PreservedFiles++
			report.PreservedBytes += att.SizeBytes
		}
	}
	return nil
}

func (j *Retention) reconcileOrphans(live map[int64]bool, report *RetentionReport) {
	nodes, err := j.repo.AreaNodes()
	if err != nil {
		report.Failures++
		j.log.Error().Err(err).Msg("listing content nodes failed")
		return
	}

	for _, name := range nodes {
		areaID, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			j.log.Warn().Str("node", name).Msg("content node name does not encode an area id, skipping")
			continue
		}
		if live[areaID] {
			continue
		}

		files, bytes, err := j.repo.RemoveNode(name)
		if err != nil {
			report.Failures++
			j.log.Error().Err(err).Str("node", name).Msg("orphan removal failed, continuing")
			continue
		}
		report.OrphanNodes++
		report.OrphanFiles += files
		report.OrphanBytes += bytes
		j.log.Info().Int64("area", areaID).Int("files", files).Int64("bytes", bytes).Msg("removed orphaned content node")
	}
}
