// Package notify computes digest recipients and delivers consolidated
// notification mails for audit batches and upcoming deletions.
package notify

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/audit"
	"github.com/transferbox/transferbox/internal/directory"
)

// UserLookup resolves recipients to their account. Satisfied by the
// directory repo.
type UserLookup interface {
	GetByID(id int64) (*directory.User, error)
}

// Engine turns an area's unflushed audit entries into digest mails.
type Engine struct {
	access  *area.Checker
	users   UserLookup
	mailer  Mailer
	baseURL string
	log     zerolog.Logger
}

// NewEngine creates a notification engine.
func NewEngine(access *area.Checker, users UserLookup, mailer Mailer, baseURL string, log zerolog.Logger) *Engine {
	return &Engine{
		access:  access,
		users:   users,
		mailer:  mailer,
		baseURL: baseURL,
		log:     log.With().Str("component", "notify").Logger(),
	}
}

// SendDigests derives the recipient set for the batch and sends one digest
// per recipient. Delivery is best effort: a failure toward one recipient
// never aborts the others. Returns the number of mails actually sent.
func (e *Engine) SendDigests(a *area.Area, entries, downloads []*audit.Entry) (int, error) {
	recipients := deriveRecipients(a, entries)
	if len(recipients) == 0 {
		return 0, nil
	}

	sent := 0
	for _, userID := range recipients {
		own := filterOwnActions(entries, userID)
		if len(own) == 0 {
			continue
		}

		// Access may have been revoked between the event and the digest.
		if err := e.access.CheckAccess(userID, a, area.OpSelect); err != nil {
			var denied *area.AccessError
			if errors.As(err, &denied) {
				e.log.Debug().Int64("user", userID).Int64("area", a.ID).Msg("digest recipient lost access, skipping")
			} else {
				e.log.Warn().Err(err).Int64("user", userID).Msg("digest access re-check failed, skipping")
			}
			continue
		}

		u, err := e.users.GetByID(userID)
		if err != nil || u.Deactivated || u.Email == "" {
			e.log.Warn().Int64("user", userID).Msg("digest recipient not deliverable, skipping")
			continue
		}

		body, err := renderDigest(u.DisplayName, a, own, downloads, e.areaLink(a), e.actorName)
		if err != nil {
			e.log.Error().Err(err).Int64("user", userID).Msg("digest rendering failed")
			continue
		}

		msg := &Message{
			To:      u.Email,
			ToName:  u.DisplayName,
			Subject: fmt.Sprintf("Data transfer area %q: new activity", a.Name),
			Body:    body,
		}
		if err := e.mailer.Send(msg); err != nil {
			e.log.Error().Err(err).Str("to", u.Email).Msg("digest delivery failed")
			continue
		}
		sent++
	}

	return sent, nil
}

// SendExpiryWarning sends one pre-deletion warning mail covering all the
// observer's soon-to-expire attachments.
func (e *Engine) SendExpiryWarning(userID int64, items []ExpiryItem) error {
	if len(items) == 0 {
		return nil
	}

	u, err := e.users.GetByID(userID)
	if err != nil {
		return fmt.Errorf("resolve expiry warning recipient %d: %w", userID, err)
	}
	if u.Deactivated || u.Email == "" {
		return nil
	}

	body, err := renderExpiryWarning(u.DisplayName, items)
	if err != nil {
		return err
	}

	return e.mailer.Send(&Message{
		To:      u.Email,
		ToName:  u.DisplayName,
		Subject: fmt.Sprintf("Data transfer: %d attachment(s) about to be deleted", len(items)),
		Body:    body,
	})
}

// deriveRecipients computes the de-duplicated recipient set for a batch:
// the original uploader of modified or deleted files (when someone else
// acted), plus every observer except the acting user.
func deriveRecipients(a *area.Area, entries []*audit.Entry) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, e := range entries {
		switch e.EventType {
		case audit.EventModification, audit.EventDelete:
			if e.UploadUserID != 0 && e.UploadUserID != e.ByUserID {
				add(e.UploadUserID)
			}
			fallthrough
		case audit.EventUpload:
			for _, obs := range a.ObserverIDs {
				if obs != e.ByUserID {
					add(obs)
				}
			}
		}
	}
	return out
}

// filterOwnActions drops the entries authored by the recipient so a digest
// never reports a user's own actions back to them.
func filterOwnActions(entries []*audit.Entry, userID int64) []*audit.Entry {
	var out []*audit.Entry
	for _, e := range entries {
		if e.ByUserID == userID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (e *Engine) areaLink(a *area.Area) string {
	return fmt.Sprintf("%s/areas/%d", e.baseURL, a.ID)
}

func (e *Engine) actorName(entry *audit.Entry) string {
	if entry.ByExternal != "" {
		return entry.ByExternal
	}
	if u, err := e.users.GetByID(entry.ByUserID); err == nil {
		return u.DisplayName
	}
	return fmt.Sprintf("user %d", entry.ByUserID)
}
