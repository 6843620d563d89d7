package jobs

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/content"
	"github.com/transferbox/transferbox/internal/notify"
)

// PreDeletion warns observers about attachments that will be auto-deleted
// soon. Runs nightly; weekend runs are skipped so nobody gets warnings they
// cannot act on.
type PreDeletion struct {
	areas    *area.Store
	repo     content.Repository
	engine   *notify.Engine
	holidays map[string]bool // dates formatted 2006-01-02
	log      zerolog.Logger

	now func() time.Time
}

// NewPreDeletion creates the pre-deletion warning job.
func NewPreDeletion(areas *area.Store, repo content.Repository, engine *notify.Engine, holidays []string, log zerolog.Logger) *PreDeletion {
	hs := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		hs[h] = true
	}
	return &PreDeletion{
		areas:    areas,
		repo:     repo,
		engine:   engine,
		holidays: hs,
		log:      log.With().Str("job", "predeletion").Logger(),
		now:      time.Now,
	}
}

// WarningLead returns how far ahead of deletion observers are warned, as a
// step function of the area's retention window. Short-lived areas get no
// warning at all.
func WarningLead(expiryDays int) time.Duration {
	switch {
	case expiryDays <= 10:
		return 0
	case expiryDays <= 30:
		return 7 * 24 * time.Hour
	case expiryDays <= 90:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Run executes one pass.
func (j *PreDeletion) Run() {
	now := j.now()
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return
	}
	if j.holidays[now.Format("2006-01-02")] {
		return
	}

	sent := j.RunOnce(now)
	if sent > 0 {
		j.log.Info().Int("mails_sent", sent).Msg("pre-deletion warnings sent")
	}
}

// RunOnce collects the soon-to-expire attachments per observer and sends
// one warning mail per observer, soonest expiry first. Returns the number
// of mails sent.
func (j *PreDeletion) RunOnce(now time.Time) int {
	areas, err := j.areas.List()
	if err != nil {
		j.log.Error().Err(err).Msg("listing areas failed, skipping run")
		return 0
	}

	byObserver := make(map[int64][]notify.ExpiryItem)
	var order []int64

	for _, a := range areas {
		lead := WarningLead(a.ExpiryDays)
		if lead == 0 || len(a.ObserverIDs) == 0 {
			continue
		}

		atts, err := j.repo.List(a.ID)
		if err != nil {
			j.log.Error().Err(err).Int64("area", a.ID).Msg("listing attachments failed, continuing")
			continue
		}

		for _, att := range atts {
			expiresAt := att.LastTouched().Add(a.ExpiresAfter())
			if expiresAt.Sub(now) > lead {
				continue
			}
			item := notify.ExpiryItem{Area: a, Attachment: att, ExpiresAt: expiresAt}
			for _, obs := range a.ObserverIDs {
				if _, ok := byObserver[obs]; !ok {
					order = append(order, obs)
				}
				byObserver[obs] = append(byObserver[obs], item)
			}
		}
	}

	sent := 0
	for _, obs := range order {
		items := byObserver[obs]
		sort.Slice(items, func(i, k int) bool { return items[i].ExpiresAt.Before(items[k].ExpiresAt) })
		if err := j.engine.SendExpiryWarning(obs, items); err != nil {
			j.log.Error().Err(err).Int64("user", obs).Msg("expiry warning delivery failed, continuing")
			continue
		}
		sent++
	}
	return sent
}
