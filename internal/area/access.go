package area

import "fmt"

// Operation is an action attempted against an area or one of its attachments.
type Operation string

const (
	OpSelect   Operation = "SELECT"
	OpDownload Operation = "DOWNLOAD"
	OpUpload   Operation = "UPLOAD"
	OpUpdate   Operation = "UPDATE"
	OpDelete   Operation = "DELETE"
)

// MembershipFunc reports whether a user belongs to at least one of the
// given groups. Wired to the directory repo in production.
type MembershipFunc func(userID int64, groupIDs []int64) (bool, error)

// Checker decides per-user, per-operation access to areas. It performs no
// I/O of its own; group membership is resolved through the injected func.
type Checker struct {
	isMember MembershipFunc
}

// NewChecker creates an access checker.
func NewChecker(isMember MembershipFunc) *Checker {
	return &Checker{isMember: isMember}
}

// CheckAccess decides the operation for an internal user on the area.
// For non-SELECT operations on personal boxes, prefer CheckAttachmentAccess
// so the original uploader of an attachment keeps rights to it.
func (c *Checker) CheckAccess(userID int64, a *Area, op Operation) error {
	if a.IsPersonal() {
		if userID == a.OwnerID {
			return nil
		}
		return &AccessError{Op: op, ActorID: userID, AreaID: a.ID}
	}

	if a.IsAdmin(userID) {
		return nil
	}

	// Upload is granted to anyone who may see the area. Update and delete
	// currently fall back to the same rule; a per-uploader ownership check
	// may tighten this later.
	switch op {
	case OpSelect, OpDownload, OpUpload, OpUpdate, OpDelete:
		if containsID(a.AccessUserIDs, userID) {
			return nil
		}
		member, err := c.isMember(userID, a.AccessGroupIDs)
		if err != nil {
			return fmt.Errorf("resolve group membership: %w", err)
		}
		if member {
			return nil
		}
	}

	return &AccessError{Op: op, ActorID: userID, AreaID: a.ID}
}

// CheckAttachmentAccess decides the operation for an internal user on a
// specific attachment. In a personal box the original uploader of the
// attachment keeps non-SELECT rights to their own upload even though they
// cannot see the rest of the box; for an upload the actor is the uploader
// of the attachment being created, which is what lets non-owners drop
// files into someone else's box in the first place.
func (c *Checker) CheckAttachmentAccess(userID int64, a *Area, uploaderID int64, op Operation) error {
	if a.IsPersonal() && op != OpSelect && uploaderID != 0 && uploaderID == userID {
		return nil
	}
	return c.CheckAccess(userID, a, op)
}

// CheckExternal decides the operation for an anonymous caller that already
// passed the token+password gate. descriptor identifies the caller for the
// audit trail (e.g. client IP plus provided name).
func (c *Checker) CheckExternal(descriptor string, a *Area, op Operation) error {
	deny := &AccessError{Op: op, External: descriptor, AreaID: a.ID}

	// Personal boxes are never externally reachable.
	if a.IsPersonal() {
		return deny
	}

	switch op {
	case OpDownload:
		if a.ExternalDownloadEnabled {
			return nil
		}
	case OpUpload:
		if a.ExternalUploadEnabled {
			return nil
		}
	}
	return deny
}

// Scrub removes the external secrets from an area unless the viewer is one
// of its admins. Callers must scrub every area they hand to a non-admin,
// regardless of why access was granted.
func Scrub(a *Area, viewerID int64) {
	if a.IsAdmin(viewerID) {
		return
	}
	a.ExternalToken = ""
	a.ExternalPassword = ""
	a.ExternalPasswordHash = ""
}
