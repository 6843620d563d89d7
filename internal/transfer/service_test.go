package transfer

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/audit"
	"github.com/transferbox/transferbox/internal/content"
	"github.com/transferbox/transferbox/internal/db"
)

type fixture struct {
	areas    *area.Store
	auditLog *audit.Log
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	areas := area.NewStore(database.DB, area.Limits{
		MaxUploadKB:         1000,
		PersonalBoxUploadKB: 100,
	}, zerolog.Nop())
	auditLog := audit.NewLog(database.DB, zerolog.Nop())
	checker := area.NewChecker(func(userID int64, groupIDs []int64) (bool, error) { return false, nil })

	repo, err := content.NewFSRepository(filepath.Join(t.TempDir(), "content"), zerolog.Nop())
	require.NoError(t, err)
	repo.SetChangeFunc(func(areaID int64, count int, bytes int64) {
		areas.UpdateAttachmentStats(areaID, count, bytes)
	})

	return &fixture{
		areas:    areas,
		auditLog: auditLog,
		service:  NewService(areas, checker, repo, auditLog, zerolog.Nop()),
	}
}

func (f *fixture) sharedArea(t *testing.T) *area.Area {
	t.Helper()
	a := &area.Area{Name: "Project X", Kind: area.KindShared, AdminIDs: []int64{1}, AccessUserIDs: []int64{2}}
	require.NoError(t, f.areas.Create(a))
	return a
}

func (f *fixture) unflushed(t *testing.T, areaID int64) []*audit.Entry {
	t.Helper()
	entries, err := f.auditLog.QueuedFlushable(areaID, time.Now().Add(time.Hour), time.Minute)
	require.NoError(t, err)
	return entries
}

func TestUploadGateAndAudit(t *testing.T) {
	f := newFixture(t)
	a := f.sharedArea(t)

	att, err := f.service.Upload(2, a.ID, "notes.txt", "meeting notes", 5, strings.NewReader("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, att.ID)

	entries := f.unflushed(t, a.ID)
	require.Len(t, entries, 1)
	require.Equal(t, audit.EventUpload, entries[0].EventType)
	require.Equal(t, int64(2), entries[0].ByUserID)
	require.Equal(t, "notes.txt", entries[0].Filename)

	// The change callback keeps the cached counters fresh.
	stored, err := f.areas.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.AttachmentsCount)
	require.Equal(t, int64(5), stored.AttachmentsBytes)
}

func TestUploadDeniedForOutsider(t *testing.T) {
	f := newFixture(t)
	a := f.sharedArea(t)

	_, err := f.service.Upload(99, a.ID, "x.txt", "", 1, strings.NewReader("x"))
	var denied *area.AccessError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, area.OpUpload, denied.Op)

	require.Empty(t, f.unflushed(t, a.ID), "denied operations must not be audited as actions")
}

func TestUploadRejectsOversize(t *testing.T) {
	f := newFixture(t)
	a := f.sharedArea(t)

	// Per-file limit is 1000 KB.
	_, err := f.service.Upload(1, a.ID, "big.bin", "", 2_000_000, strings.NewReader(""))
	var verr *area.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDownloadAuditsAndStreams(t *testing.T) {
	f := newFixture(t)
	a := f.sharedArea(t)

	att, err := f.service.Upload(1, a.ID, "notes.txt", "", 5, strings.NewReader("hello"))
	require.NoError(t, err)

	rc, got, err := f.service.Download(2, a.ID, att.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.Equal(t, "notes.txt", got.Filename)

	downloads, err := f.auditLog.DownloadEntries(a.ID)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	require.Equal(t, int64(2), downloads[0].ByUserID)
}

func TestPersonalBoxDropByNonOwner(t *testing.T) {
	f := newFixture(t)
	box, err := f.areas.EnsurePersonalBox(7)
	require.NoError(t, err)

	// Any internal user may drop a file into someone else's personal box.
	dropped, err := f.service.Upload(8, box.ID, "handover.zip", "for you", 4, strings.NewReader("data"))
	require.NoError(t, err)

	// The owner sees the drop and keeps full control of the box.
	_, atts, err := f.service.ListAttachments(7, box.ID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	own, err := f.service.Upload(7, box.ID, "private.txt", "", 5, strings.NewReader("hello"))
	require.NoError(t, err)

	// The dropper keeps rights to their own file...
	rc, _, err := f.service.Download(8, box.ID, dropped.ID)
	require.NoError(t, err)
	rc.Close()

	// ...but cannot list the box or touch the owner's files.
	var denied *area.AccessError
	_, _, err = f.service.ListAttachments(8, box.ID)
	require.ErrorAs(t, err, &denied)
	_, _, err = f.service.Download(8, box.ID, own.ID)
	require.ErrorAs(t, err, &denied)
	require.ErrorAs(t, f.service.Delete(8, box.ID, own.ID), &denied)

	require.NoError(t, f.service.Delete(8, box.ID, dropped.ID))
}

func TestDownloadSelectionAuditsOnce(t *testing.T) {
	f := newFixture(t)
	a := f.sharedArea(t)

	first, err := f.service.Upload(1, a.ID, "one.txt", "", 3, strings.NewReader("one"))
	require.NoError(t, err)
	second, err := f.service.Upload(1, a.ID, "two.txt", "", 3, strings.NewReader("two"))
	require.NoError(t, err)
	_, err = f.service.Upload(1, a.ID, "three.txt", "", 5, strings.NewReader("three"))
	require.NoError(t, err)

	atts, err := f.service.DownloadSelection(2, a.ID, []string{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, atts, 2)

	downloads, err := f.auditLog.DownloadEntries(a.ID)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	require.Equal(t, audit.EventDownloadMulti, downloads[0].EventType)
	require.Equal(t, "2 attachments", downloads[0].Filename)
}

func TestUpdateMetaKeepsOldValuesOnAudit(t *testing.T) {
	f := newFixture(t)
	a := f.sharedArea(t)

	att, err := f.service.Upload(2, a.ID, "draft.txt", "first draft", 5, strings.NewReader("hello"))
	require.NoError(t, err)

	_, err = f.service.UpdateMeta(1, a.ID, att.ID, "final.txt", "final version")
	require.NoError(t, err)

	entries := f.unflushed(t, a.ID)
	require.Len(t, entries, 2)
	mod := entries[1]
	require.Equal(t, audit.EventModification, mod.EventType)
	require.Equal(t, "final.txt", mod.Filename)
	require.Equal(t, "draft.txt", mod.OldFilename)
	require.Equal(t, int64(2), mod.UploadUserID, "the original uploader must be retained")
}

func TestDeleteRetainsUploaderOnAudit(t *testing.T) {
	f := newFixture(t)
	a := f.sharedArea(t)

	att, err := f.service.Upload(2, a.ID, "gone.txt", "", 5, strings.NewReader("hello"))
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(1, a.ID, att.ID))

	entries := f.unflushed(t, a.ID)
	del := entries[len(entries)-1]
	require.Equal(t, audit.EventDelete, del.EventType)
	require.Equal(t, int64(1), del.ByUserID)
	require.Equal(t, int64(2), del.UploadUserID)
	require.Equal(t, "gone.txt", del.Filename)
}

func TestExternalFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	a := &area.Area{
		Name: "Drop zone", Kind: area.KindShared, AdminIDs: []int64{1},
		ExternalDownloadEnabled: true, ExternalUploadEnabled: true,
	}
	require.NoError(t, f.areas.Create(a))

	att, err := f.service.UploadExternal(a.ExternalToken, a.ExternalPassword,
		"203.0.113.9 (partner)", "drop.zip", "", 4, strings.NewReader("data"))
	require.NoError(t, err)

	rc, _, err := f.service.DownloadExternal(a.ExternalToken, a.ExternalPassword,
		"203.0.113.9 (partner)", att.ID)
	require.NoError(t, err)
	rc.Close()

	entries, err := f.auditLog.DownloadEntries(a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "203.0.113.9 (partner)", entries[0].ByExternal)
	require.Zero(t, entries[0].ByUserID)
}

func TestExternalWrongSecretsLookIdentical(t *testing.T) {
	f := newFixture(t)
	a := &area.Area{
		Name: "Drop zone", Kind: area.KindShared, AdminIDs: []int64{1},
		ExternalUploadEnabled: true,
	}
	require.NoError(t, f.areas.Create(a))

	// Unknown token, short token and wrong password must be
	// indistinguishable: all report not found.
	_, err := f.service.UploadExternal(strings.Repeat("x", area.AccessTokenLength), "whatever",
		"caller", "a.txt", "", 1, strings.NewReader("x"))
	require.True(t, errors.Is(err, area.ErrNotFound))

	_, err = f.service.UploadExternal("short", "whatever",
		"caller", "a.txt", "", 1, strings.NewReader("x"))
	require.True(t, errors.Is(err, area.ErrNotFound))

	_, err = f.service.UploadExternal(a.ExternalToken, "wrong-password",
		"caller", "a.txt", "", 1, strings.NewReader("x"))
	require.True(t, errors.Is(err, area.ErrNotFound))

	// Download is not enabled on this area: the gate must deny it even
	// with valid secrets.
	_, _, err = f.service.DownloadExternal(a.ExternalToken, a.ExternalPassword, "caller", "any")
	var denied *area.AccessError
	require.ErrorAs(t, err, &denied)
}

func TestListScrubsSecretsForNonAdmins(t *testing.T) {
	f := newFixture(t)
	a := &area.Area{
		Name: "Drop zone", Kind: area.KindShared,
		AdminIDs: []int64{1}, AccessUserIDs: []int64{2},
		ExternalDownloadEnabled: true,
	}
	require.NoError(t, f.areas.Create(a))

	adminView, _, err := f.service.ListAttachments(1, a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, adminView.ExternalToken)

	memberView, _, err := f.service.ListAttachments(2, a.ID)
	require.NoError(t, err)
	require.Empty(t, memberView.ExternalToken)
	require.Empty(t, memberView.ExternalPassword)
}
