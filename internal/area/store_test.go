package area

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/db"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewStore(database.DB, Limits{
		MaxUploadKB:         1000,
		PersonalBoxUploadKB: 100,
	}, zerolog.Nop())
}

func TestCreateDefaultsFreshAreaExpiry(t *testing.T) {
	s := testStore(t)

	a := &Area{Name: "Project X", Kind: KindShared}
	if err := s.Create(a); err != nil {
		t.Fatal(err)
	}
	if a.ExpiryDays != NewAreaExpiryDays {
		t.Fatalf("fresh area expiry = %d, want %d", a.ExpiryDays, NewAreaExpiryDays)
	}
	if a.MaxUploadKB != 1000 {
		t.Fatalf("upload limit not clamped to global max: %d", a.MaxUploadKB)
	}
}

func TestCreateRejectsReservedName(t *testing.T) {
	s := testStore(t)

	a := &Area{Name: PersonalBoxName, Kind: KindShared}
	err := s.Create(a)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestEnsurePersonalBoxIdempotent(t *testing.T) {
	s := testStore(t)

	first, err := s.EnsurePersonalBox(7)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.EnsurePersonalBox(7)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("personal box duplicated: %d vs %d", first.ID, second.ID)
	}

	areas, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(areas) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(areas))
	}
}

func TestEnsurePersonalBoxRehardensWeakenedRow(t *testing.T) {
	s := testStore(t)

	box, err := s.EnsurePersonalBox(7)
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a manual data edit that weakens the box.
	if _, err := s.db.Exec(`
		UPDATE areas SET external_download_enabled = 1, external_upload_enabled = 1,
			access_user_ids = '42', access_group_ids = '9',
			external_token = 'leaked', max_upload_kb = 99999
		WHERE id = ?
	`, box.ID); err != nil {
		t.Fatal(err)
	}

	box, err = s.EnsurePersonalBox(7)
	if err != nil {
		t.Fatal(err)
	}
	if box.ExternalDownloadEnabled || box.ExternalUploadEnabled {
		t.Fatal("external access must be disabled on a personal box")
	}
	if len(box.AccessUserIDs) != 0 || len(box.AccessGroupIDs) != 0 {
		t.Fatal("access lists must be empty on a personal box")
	}
	if box.ExternalToken != "" {
		t.Fatal("external token must be cleared on a personal box")
	}
	if box.MaxUploadKB != 100 {
		t.Fatalf("upload limit not forced to personal limit: %d", box.MaxUploadKB)
	}
	if len(box.AdminIDs) != 1 || box.AdminIDs[0] != 7 {
		t.Fatalf("admins = %v, want exactly the owner", box.AdminIDs)
	}
	if !box.IsObserver(7) {
		t.Fatal("observers must include the owning admin")
	}

	// The hardening must be persisted, not just returned.
	stored, err := s.Get(box.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ExternalToken != "" || stored.ExternalDownloadEnabled {
		t.Fatal("hardening was not written back")
	}
}

func TestUpdateRejectsPersonalBoxOwnerChange(t *testing.T) {
	s := testStore(t)

	box, err := s.EnsurePersonalBox(7)
	if err != nil {
		t.Fatal(err)
	}

	changed := *box
	changed.OwnerID = 8
	err = s.Update(&changed)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestEnablingExternalAccessGeneratesSecrets(t *testing.T) {
	s := testStore(t)

	a := &Area{Name: "Drop zone", Kind: KindShared}
	if err := s.Create(a); err != nil {
		t.Fatal(err)
	}
	if a.ExternalToken != "" {
		t.Fatal("no token expected while external access is off")
	}

	a.ExternalDownloadEnabled = true
	if err := s.Update(a); err != nil {
		t.Fatal(err)
	}
	if len(a.ExternalToken) != AccessTokenLength {
		t.Fatalf("token length = %d, want %d", len(a.ExternalToken), AccessTokenLength)
	}
	if len(a.ExternalPassword) != PasswordLength {
		t.Fatalf("password length = %d, want %d", len(a.ExternalPassword), PasswordLength)
	}
	if !s.CheckExternalPassword(a, a.ExternalPassword) {
		t.Fatal("generated password does not verify against its hash")
	}
	if s.CheckExternalPassword(a, "wrong") {
		t.Fatal("wrong password verified")
	}

	// Re-saving with a valid token must not rotate it.
	token := a.ExternalToken
	if err := s.Update(a); err != nil {
		t.Fatal(err)
	}
	if a.ExternalToken != token {
		t.Fatal("token rotated although it was valid")
	}
}

func TestReplacingExternalPasswordRehashes(t *testing.T) {
	s := testStore(t)

	a := &Area{Name: "Drop zone", Kind: KindShared, ExternalDownloadEnabled: true}
	if err := s.Create(a); err != nil {
		t.Fatal(err)
	}
	old := a.ExternalPassword

	// An admin replaces the password without touching the hash.
	a.ExternalPassword = "Wk7mPq"
	if err := s.Update(a); err != nil {
		t.Fatal(err)
	}

	if !s.CheckExternalPassword(a, "Wk7mPq") {
		t.Fatal("replacement password does not verify")
	}
	if s.CheckExternalPassword(a, old) {
		t.Fatal("old password still verifies against a stale hash")
	}
}

func TestDuplicatePersonalBoxRowRejected(t *testing.T) {
	s := testStore(t)

	if _, err := s.EnsurePersonalBox(7); err != nil {
		t.Fatal(err)
	}

	// A direct insert racing past the lookup must hit the unique owner
	// index, and EnsurePersonalBox must fall back to the winner's row.
	dup := &Area{Kind: KindPersonal, OwnerID: 7}
	if err := s.Create(dup); err == nil {
		t.Fatal("second personal box row for the same owner was accepted")
	}

	box, err := s.EnsurePersonalBox(7)
	if err != nil {
		t.Fatal(err)
	}
	areas, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(areas) != 1 || areas[0].ID != box.ID {
		t.Fatalf("expected the single original row, got %d rows", len(areas))
	}
}

func TestFindByExternalToken(t *testing.T) {
	s := testStore(t)

	a := &Area{Name: "Drop zone", Kind: KindShared, ExternalUploadEnabled: true}
	if err := s.Create(a); err != nil {
		t.Fatal(err)
	}

	found, err := s.FindByExternalToken(a.ExternalToken)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != a.ID {
		t.Fatalf("found area %d, want %d", found.ID, a.ID)
	}

	if _, err := s.FindByExternalToken("unknown-token-of-the-full-fifty-character-length-x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown token: got %v, want ErrNotFound", err)
	}
}

func TestShortTokenRejectedWithoutQuery(t *testing.T) {
	// A store without a database: any query would panic, so a pass proves
	// the length guard short-circuits.
	s := NewStore(nil, Limits{}, zerolog.Nop())

	if _, err := s.FindByExternalToken("short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("short token: got %v, want ErrNotFound", err)
	}
}
