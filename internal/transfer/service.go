// Package transfer ties the access gate, content repository and audit log
// together for the user-facing upload/download/modify/delete operations.
// Transport wiring (HTTP handlers, multipart parsing) sits above it.
package transfer

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/audit"
	"github.com/transferbox/transferbox/internal/content"
)

// Service executes attachment operations on behalf of internal users and
// external token holders.
type Service struct {
	areas    *area.Store
	access   *area.Checker
	repo     content.Repository
	auditLog *audit.Log
	log      zerolog.Logger
}

// NewService creates a transfer service.
func NewService(areas *area.Store, access *area.Checker, repo content.Repository, auditLog *audit.Log, log zerolog.Logger) *Service {
	return &Service{
		areas:    areas,
		access:   access,
		repo:     repo,
		auditLog: auditLog,
		log:      log.With().Str("component", "transfer").Logger(),
	}
}

// ListAttachments returns the area (scrubbed for non-admins) and its
// attachments, gated on SELECT access.
func (s *Service) ListAttachments(userID, areaID int64) (*area.Area, []*content.Attachment, error) {
	a, err := s.areas.Get(areaID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.access.CheckAccess(userID, a, area.OpSelect); err != nil {
		return nil, nil, err
	}

	atts, err := s.repo.List(areaID)
	if err != nil {
		return nil, nil, err
	}
	area.Scrub(a, userID)
	return a, atts, nil
}

// Upload stores a new attachment for an internal user. The actor is the
// uploader of the attachment being created, so the per-attachment check
// applies: anyone can drop a file into another user's personal box and
// keeps download/update/delete rights to that file afterwards.
func (s *Service) Upload(userID, areaID int64, filename, description string, size int64, r io.Reader) (*content.Attachment, error) {
	a, err := s.areas.Get(areaID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckAttachmentAccess(userID, a, userID, area.OpUpload); err != nil {
		return nil, err
	}
	if err := checkUploadSize(a, size); err != nil {
		return nil, err
	}

	att := &content.Attachment{
		AreaID:      areaID,
		Filename:    filename,
		Description: description,
		UploaderID:  userID,
	}
	if err := s.repo.Save(att, r); err != nil {
		return nil, err
	}

	s.appendAudit(&audit.Entry{
		AreaID:      areaID,
		EventType:   audit.EventUpload,
		ByUserID:    userID,
		Filename:    filename,
		Description: description,
	})
	return att, nil
}

// Download opens one attachment for an internal user.
func (s *Service) Download(userID, areaID int64, attachmentID string) (io.ReadCloser, *content.Attachment, error) {
	a, err := s.areas.Get(areaID)
	if err != nil {
		return nil, nil, err
	}
	att, err := s.repo.Get(areaID, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.access.CheckAttachmentAccess(userID, a, att.UploaderID, area.OpDownload); err != nil {
		return nil, nil, err
	}

	rc, att, err := s.repo.Open(areaID, attachmentID)
	if err != nil {
		return nil, nil, err
	}

	s.appendAudit(&audit.Entry{
		AreaID:    areaID,
		EventType: audit.EventDownload,
		ByUserID:  userID,
		Filename:  att.Filename,
	})
	return rc, att, nil
}

// DownloadSelection resolves a chosen subset of the area's attachments for
// a bulk download, recording a single DOWNLOAD_MULTI event. Streaming and
// archiving are the transport layer's concern.
func (s *Service) DownloadSelection(userID, areaID int64, attachmentIDs []string) ([]*content.Attachment, error) {
	a, err := s.areas.Get(areaID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckAccess(userID, a, area.OpDownload); err != nil {
		return nil, err
	}

	atts := make([]*content.Attachment, 0, len(attachmentIDs))
	for _, id := range attachmentIDs {
		att, err := s.repo.Get(areaID, id)
		if err != nil {
			return nil, err
		}
		atts = append(atts, att)
	}

	s.appendAudit(&audit.Entry{
		AreaID:    areaID,
		EventType: audit.EventDownloadMulti,
		ByUserID:  userID,
		Filename:  fmt.Sprintf("%d attachments", len(atts)),
	})
	return atts, nil
}

// DownloadAll lists the area's attachments for a bulk download, recording a
// single DOWNLOAD_ALL event. Streaming and archiving are the transport
// layer's concern.
func (s *Service) DownloadAll(userID, areaID int64) ([]*content.Attachment, error) {
	a, err := s.areas.Get(areaID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckAccess(userID, a, area.OpDownload); err != nil {
		return nil, err
	}

	atts, err := s.repo.List(areaID)
	if err != nil {
		return nil, err
	}

	s.appendAudit(&audit.Entry{
		AreaID:    areaID,
		EventType: audit.EventDownloadAll,
		ByUserID:  userID,
		Filename:  fmt.Sprintf("%d attachments", len(atts)),
	})
	return atts, nil
}

// UpdateMeta renames an attachment or changes its description, keeping the
// old values on the audit entry.
func (s *Service) UpdateMeta(userID, areaID int64, attachmentID, filename, description string) (*content.Attachment, error) {
	a, err := s.areas.Get(areaID)
	if err != nil {
		return nil, err
	}
	att, err := s.repo.Get(areaID, attachmentID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CheckAttachmentAccess(userID, a, att.UploaderID, area.OpUpdate); err != nil {
		return nil, err
	}

	oldFilename, oldDescription := att.Filename, att.Description
	att.Filename = filename
	att.Description = description
	if err := s.repo.UpdateMeta(att); err != nil {
		return nil, err
	}

	s.appendAudit(&audit.Entry{
		AreaID:         areaID,
		EventType:      audit.EventModification,
		ByUserID:       userID,
		UploadUserID:   att.UploaderID,
		Filename:       filename,
		Description:    description,
		OldFilename:    oldFilename,
		OldDescription: oldDescription,
	})
	return att, nil
}

// Delete removes an attachment, keeping the uploader on the audit entry so
// they can still be notified after the file is gone.
func (s *Service) Delete(userID, areaID int64, attachmentID string) error {
	a, err := s.areas.Get(areaID)
	if err != nil {
		return err
	}
	att, err := s.repo.Get(areaID, attachmentID)
	if err != nil {
		return err
	}
	if err := s.access.CheckAttachmentAccess(userID, a, att.UploaderID, area.OpDelete); err != nil {
		return err
	}

	if err := s.repo.Delete(areaID, attachmentID); err != nil {
		return err
	}

	s.appendAudit(&audit.Entry{
		AreaID:       areaID,
		EventType:    audit.EventDelete,
		ByUserID:     userID,
		UploadUserID: att.UploaderID,
		Filename:     att.Filename,
		Description:  att.Description,
	})
	return nil
}

// UploadExternal stores a new attachment for an anonymous token holder.
// caller is the audit descriptor of the external actor (e.g. client IP and
// provided name). Unknown tokens and wrong passwords are both reported as
// not found so existence never leaks.
func (s *Service) UploadExternal(token, password, caller, filename, description string, size int64, r io.Reader) (*content.Attachment, error) {
	a, err := s.externalGate(token, password, caller, area.OpUpload)
	if err != nil {
		return nil, err
	}
	if err := checkUploadSize(a, size); err != nil {
		return nil, err
	}

	att := &content.Attachment{
		AreaID:      a.ID,
		Filename:    filename,
		Description: description,
	}
	if err := s.repo.Save(att, r); err != nil {
		return nil, err
	}

	s.appendAudit(&audit.Entry{
		AreaID:      a.ID,
		EventType:   audit.EventUpload,
		ByExternal:  caller,
		Filename:    filename,
		Description: description,
	})
	return att, nil
}

// DownloadExternal opens one attachment for an anonymous token holder.
func (s *Service) DownloadExternal(token, password, caller, attachmentID string) (io.ReadCloser, *content.Attachment, error) {
	a, err := s.externalGate(token, password, caller, area.OpDownload)
	if err != nil {
		return nil, nil, err
	}

	rc, att, err := s.repo.Open(a.ID, attachmentID)
	if err != nil {
		return nil, nil, err
	}

	s.appendAudit(&audit.Entry{
		AreaID:     a.ID,
		EventType:  audit.EventDownload,
		ByExternal: caller,
		Filename:   att.Filename,
	})
	return rc, att, nil
}

func (s *Service) externalGate(token, password, caller string, op area.Operation) (*area.Area, error) {
	a, err := s.areas.FindByExternalToken(token)
	if err != nil {
		return nil, err
	}
	if !s.areas.CheckExternalPassword(a, password) {
		return nil, area.ErrNotFound
	}
	if err := s.access.CheckExternal(caller, a, op); err != nil {
		return nil, err
	}
	return a, nil
}

// appendAudit records the event; audit failures are logged, not surfaced,
// so a completed content operation is never reported as failed.
func (s *Service) appendAudit(e *audit.Entry) {
	if err := s.auditLog.Append(e); err != nil {
		s.log.Error().Err(err).Int64("area", e.AreaID).Str("event", string(e.EventType)).Msg("audit append failed")
	}
}

func checkUploadSize(a *area.Area, size int64) error {
	if allowed := a.AllowedUploadBytes(); size > allowed {
		return &area.ValidationError{
			Field:  "size",
			Reason: fmt.Sprintf("upload of %d bytes exceeds the allowed %d bytes", size, allowed),
		}
	}
	return nil
}
