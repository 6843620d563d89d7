package area

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// Limits holds the configured upload ceilings injected at construction.
type Limits struct {
	MaxUploadKB         int64 // global ceiling for per-area limits
	PersonalBoxUploadKB int64 // forced limit for personal boxes
}

// Store handles database operations for areas and enforces the hardening
// invariants on every insert and update.
type Store struct {
	db     *sql.DB
	limits Limits
	log    zerolog.Logger
}

// NewStore creates a new area store.
func NewStore(db *sql.DB, limits Limits, log zerolog.Logger) *Store {
	return &Store{db: db, limits: limits, log: log.With().Str("component", "areastore").Logger()}
}

const areaColumns = `id, name, description, kind, owner_id,
	admin_ids, observer_ids, access_user_ids, access_group_ids,
	external_download_enabled, external_upload_enabled,
	external_token, external_password, external_password_hash,
	expiry_days, max_upload_kb, attachments_count, attachments_bytes,
	created_at, updated_at`

// Create inserts a new area after applying the insert rules.
func (s *Store) Create(a *Area) error {
	if err := s.applyInsertRules(a); err != nil {
		return err
	}

	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO areas (name, description, kind, owner_id,
			admin_ids, observer_ids, access_user_ids, access_group_ids,
			external_download_enabled, external_upload_enabled,
			external_token, external_password, external_password_hash,
			expiry_days, max_upload_kb, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Name, a.Description, string(a.Kind), nullableID(a.OwnerID),
		joinIDs(a.AdminIDs), joinIDs(a.ObserverIDs), joinIDs(a.AccessUserIDs), joinIDs(a.AccessGroupIDs),
		a.ExternalDownloadEnabled, a.ExternalUploadEnabled,
		a.ExternalToken, a.ExternalPassword, a.ExternalPasswordHash,
		a.ExpiryDays, a.MaxUploadKB, now, now)
	if err != nil {
		return fmt.Errorf("create area %q: %w", a.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get area id: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// Update persists changes to an existing area after applying the update
// rules against the stored row.
func (s *Store) Update(a *Area) error {
	existing, err := s.Get(a.ID)
	if err != nil {
		return err
	}
	if err := s.applyUpdateRules(existing, a); err != nil {
		return err
	}

	now := time.Now()
	_, err = s.db.Exec(`
		UPDATE areas SET name = ?, description = ?,
			admin_ids = ?, observer_ids = ?, access_user_ids = ?, access_group_ids = ?,
			external_download_enabled = ?, external_upload_enabled = ?,
			external_token = ?, external_password = ?, external_password_hash = ?,
			expiry_days = ?, max_upload_kb = ?, updated_at = ?
		WHERE id = ?
	`, a.Name, a.Description,
		joinIDs(a.AdminIDs), joinIDs(a.ObserverIDs), joinIDs(a.AccessUserIDs), joinIDs(a.AccessGroupIDs),
		a.ExternalDownloadEnabled, a.ExternalUploadEnabled,
		a.ExternalToken, a.ExternalPassword, a.ExternalPasswordHash,
		a.ExpiryDays, a.MaxUploadKB, now, a.ID)
	if err != nil {
		return fmt.Errorf("update area %d: %w", a.ID, err)
	}
	a.UpdatedAt = now
	return nil
}

// Get returns a single area by ID.
func (s *Store) Get(id int64) (*Area, error) {
	row := s.db.QueryRow(`SELECT `+areaColumns+` FROM areas WHERE id = ?`, id)
	a, err := scanArea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get area %d: %w", id, err)
	}
	return a, nil
}

// List returns all areas ordered by name, personal boxes last.
func (s *Store) List() ([]*Area, error) {
	rows, err := s.db.Query(`SELECT ` + areaColumns + ` FROM areas ORDER BY kind, name`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()

	var areas []*Area
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// FindByExternalToken returns the area with the given external access token.
// Tokens shorter than the fixed length are rejected before any query is
// issued; the caller cannot distinguish that from an unknown token.
func (s *Store) FindByExternalToken(token string) (*Area, error) {
	if len(token) < AccessTokenLength {
		return nil, ErrNotFound
	}

	row := s.db.QueryRow(`SELECT `+areaColumns+` FROM areas WHERE external_token = ?`, token)
	a, err := scanArea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find area by token: %w", err)
	}
	return a, nil
}

// CheckExternalPassword verifies an external caller's password against the
// area's stored hash.
func (s *Store) CheckExternalPassword(a *Area, password string) bool {
	if a.ExternalPasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.ExternalPasswordHash), []byte(password)) == nil
}

// EnsurePersonalBox returns the user's personal box, creating it on first
// use. The hardening invariants are re-applied to pre-existing rows on
// every call so manual data edits cannot weaken a box.
func (s *Store) EnsurePersonalBox(ownerID int64) (*Area, error) {
	row := s.db.QueryRow(`SELECT `+areaColumns+` FROM areas WHERE kind = ? AND owner_id = ?`,
		string(KindPersonal), ownerID)
	a, err := scanArea(row)
	switch {
	case err == nil:
		s.SecurePersonalBox(a)
		if err := s.persistHardening(a); err != nil {
			return nil, err
		}
		return a, nil
	case errors.Is(err, sql.ErrNoRows):
		a = &Area{Kind: KindPersonal, OwnerID: ownerID}
		if err := s.Create(a); err != nil {
			// A concurrent caller may have won the create; the unique
			// owner index rejects the duplicate, so take theirs.
			row := s.db.QueryRow(`SELECT `+areaColumns+` FROM areas WHERE kind = ? AND owner_id = ?`,
				string(KindPersonal), ownerID)
			if existing, scanErr := scanArea(row); scanErr == nil {
				return existing, nil
			}
			return nil, err
		}
		s.log.Info().Int64("owner", ownerID).Int64("area", a.ID).Msg("personal box created")
		return a, nil
	default:
		return nil, fmt.Errorf("find personal box of user %d: %w", ownerID, err)
	}
}

// SecurePersonalBox forces the personal-box invariants onto the area:
// single owning admin, observers covering all admins, no user/group access
// lists, no external exposure, forced upload limit.
func (s *Store) SecurePersonalBox(a *Area) {
	a.Kind = KindPersonal
	a.Name = PersonalBoxName
	a.AdminIDs = []int64{a.OwnerID}
	for _, admin := range a.AdminIDs {
		if !containsID(a.ObserverIDs, admin) {
			a.ObserverIDs = append(a.ObserverIDs, admin)
		}
	}
	a.AccessUserIDs = nil
	a.AccessGroupIDs = nil
	a.ExternalDownloadEnabled = false
	a.ExternalUploadEnabled = false
	a.ExternalToken = ""
	a.ExternalPassword = ""
	a.ExternalPasswordHash = ""
	a.MaxUploadKB = s.limits.PersonalBoxUploadKB
	if a.ExpiryDays <= 0 {
		a.ExpiryDays = PersonalBoxExpiryDays
	}
}

// UpdateAttachmentStats refreshes the cached attachment counters. Wired to
// the content repository's event callback.
func (s *Store) UpdateAttachmentStats(areaID int64, count int, bytes int64) error {
	_, err := s.db.Exec(`
		UPDATE areas SET attachments_count = ?, attachments_bytes = ?, updated_at = ?
		WHERE id = ?
	`, count, bytes, time.Now(), areaID)
	if err != nil {
		return fmt.Errorf("update attachment stats for area %d: %w", areaID, err)
	}
	return nil
}

func (s *Store) applyInsertRules(a *Area) error {
	if a.IsPersonal() {
		if a.OwnerID == 0 {
			return &ValidationError{Field: "owner", Reason: "personal box requires an owner"}
		}
		s.SecurePersonalBox(a)
		return nil
	}

	if a.Name == PersonalBoxName {
		return &ValidationError{Field: "name", Reason: "reserved for personal boxes"}
	}
	if a.ExpiryDays <= 0 {
		a.ExpiryDays = NewAreaExpiryDays
	}
	s.clampUploadLimit(a)
	return s.ensureExternalSecrets(a)
}

func (s *Store) applyUpdateRules(existing, a *Area) error {
	if existing.IsPersonal() {
		if a.Kind != KindPersonal {
			return &ValidationError{Field: "kind", Reason: "personal box cannot change kind"}
		}
		if a.OwnerID != existing.OwnerID {
			return &ValidationError{Field: "owner", Reason: "personal box owner is immutable"}
		}
		if a.Name != existing.Name {
			return &ValidationError{Field: "name", Reason: "personal box name is immutable"}
		}
		s.SecurePersonalBox(a)
		return nil
	}

	if a.Name == PersonalBoxName {
		return &ValidationError{Field: "name", Reason: "reserved for personal boxes"}
	}
	if a.ExpiryDays <= 0 {
		a.ExpiryDays = DefaultExpiryDays
	}
	s.clampUploadLimit(a)
	return s.ensureExternalSecrets(a)
}

func (s *Store) clampUploadLimit(a *Area) {
	if a.MaxUploadKB <= 0 || a.MaxUploadKB > s.limits.MaxUploadKB {
		a.MaxUploadKB = s.limits.MaxUploadKB
	}
}

// ensureExternalSecrets generates the token and password whenever external
// access is enabled and the stored secret is absent or too short. External
// access is never silently disabled over a missing secret.
func (s *Store) ensureExternalSecrets(a *Area) error {
	if !a.ExternalDownloadEnabled && !a.ExternalUploadEnabled {
		return nil
	}

	if len(a.ExternalToken) < AccessTokenLength {
		token, err := GenerateAccessToken()
		if err != nil {
			return err
		}
		a.ExternalToken = token
	}

	if len(a.ExternalPassword) < PasswordLength {
		password, err := GeneratePassword()
		if err != nil {
			return err
		}
		a.ExternalPassword = password
	}

	// Re-hash whenever the stored hash does not match the clear value, so
	// an admin replacing the password can never leave a stale hash behind.
	if a.ExternalPasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(a.ExternalPasswordHash), []byte(a.ExternalPassword)) != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.ExternalPassword), bcryptCost)
		if err != nil {
			return fmt.Errorf("hash external password: %w", err)
		}
		a.ExternalPasswordHash = string(hash)
	}
	return nil
}

// persistHardening writes back the fields SecurePersonalBox may have
// changed, bypassing the update rules (they would re-run the same logic).
func (s *Store) persistHardening(a *Area) error {
	_, err := s.db.Exec(`
		UPDATE areas SET name = ?, admin_ids = ?, observer_ids = ?,
			access_user_ids = ?, access_group_ids = ?,
			external_download_enabled = ?, external_upload_enabled = ?,
			external_token = ?, external_password = ?, external_password_hash = ?,
			max_upload_kb = ?, updated_at = ?
		WHERE id = ?
	`, a.Name, joinIDs(a.AdminIDs), joinIDs(a.ObserverIDs),
		joinIDs(a.AccessUserIDs), joinIDs(a.AccessGroupIDs),
		a.ExternalDownloadEnabled, a.ExternalUploadEnabled,
		a.ExternalToken, a.ExternalPassword, a.ExternalPasswordHash,
		a.MaxUploadKB, time.Now(), a.ID)
	if err != nil {
		return fmt.Errorf("re-secure personal box %d: %w", a.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArea(row rowScanner) (*Area, error) {
	a := &Area{}
	var kind string
	var ownerID sql.NullInt64
	var adminIDs, observerIDs, accessUserIDs, accessGroupIDs string
	var created, updated sql.NullTime

	err := row.Scan(&a.ID, &a.Name, &a.Description, &kind, &ownerID,
		&adminIDs, &observerIDs, &accessUserIDs, &accessGroupIDs,
		&a.ExternalDownloadEnabled, &a.ExternalUploadEnabled,
		&a.ExternalToken, &a.ExternalPassword, &a.ExternalPasswordHash,
		&a.ExpiryDays, &a.MaxUploadKB, &a.AttachmentsCount, &a.AttachmentsBytes,
		&created, &updated)
	if err != nil {
		return nil, err
	}

	a.Kind = Kind(kind)
	if ownerID.Valid {
		a.OwnerID = ownerID.Int64
	}
	a.AdminIDs = splitIDs(adminIDs)
	a.ObserverIDs = splitIDs(observerIDs)
	a.AccessUserIDs = splitIDs(accessUserIDs)
	a.AccessGroupIDs = splitIDs(accessGroupIDs)
	if created.Valid {
		a.CreatedAt = created.Time
	}
	if updated.Valid {
		a.UpdatedAt = updated.Time
	}
	return a, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
