package jobs

import (
	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/content"
)

// SanityCheck compares each area's cached attachment counters against the
// content repository and logs discrepancies. Read-only; the counters are
// owned by the repository's change callback.
type SanityCheck struct {
	areas *area.Store
	repo  content.Repository
	log   zerolog.Logger
}

// NewSanityCheck creates the counter sanity job.
func NewSanityCheck(areas *area.Store, repo content.Repository, log zerolog.Logger) *SanityCheck {
	return &SanityCheck{
		areas: areas,
		repo:  repo,
		log:   log.With().Str("job", "sanity").Logger(),
	}
}

// Run executes one pass.
func (j *SanityCheck) Run() {
	areas, err := j.areas.List()
	if err != nil {
		j.log.Error().Err(err).Msg("listing areas failed, skipping run")
		return
	}

	mismatches := 0
	for _, a := range areas {
		count, bytes, err := j.repo.Stats(a.ID)
		if err != nil {
			j.log.Error().Err(err).Int64("area", a.ID).Msg("stats lookup failed, continuing")
			continue
		}
		if count != a.AttachmentsCount || bytes != a.AttachmentsBytes {
			mismatches++
			j.log.Warn().
				Int64("area", a.ID).
				Int("cached_count", a.AttachmentsCount).Int("actual_count", count).
				Int64("cached_bytes", a.AttachmentsBytes).Int64("actual_bytes", bytes).
				Msg("cached attachment counters out of sync")
		}
	}

	if mismatches > 0 {
		j.log.Warn().Int("areas", mismatches).Msg("sanity check found counter drift")
	}
}
