package content

import (
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testRepo(t *testing.T) *FSRepository {
	t.Helper()
	repo, err := NewFSRepository(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	return repo
}

func save(t *testing.T, repo *FSRepository, areaID int64, filename, data string) *Attachment {
	t.Helper()
	att := &Attachment{AreaID: areaID, Filename: filename, UploaderID: 1}
	if err := repo.Save(att, strings.NewReader(data)); err != nil {
		t.Fatalf("save %s: %v", filename, err)
	}
	return att
}

func TestSaveOpenRoundTrip(t *testing.T) {
	repo := testRepo(t)

	att := save(t, repo, 1, "hello.txt", "hello world")
	if att.ID == "" {
		t.Fatal("save must assign an id")
	}
	if att.SizeBytes != int64(len("hello world")) {
		t.Fatalf("size = %d, want %d", att.SizeBytes, len("hello world"))
	}

	rc, got, err := repo.Open(1, att.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Fatalf("read back %q", data)
	}
	if got.Filename != "hello.txt" || got.UploaderID != 1 {
		t.Fatalf("metadata mangled: %+v", got)
	}
}

func TestListAndStats(t *testing.T) {
	repo := testRepo(t)

	save(t, repo, 1, "b.txt", "bb")
	save(t, repo, 1, "a.txt", "aaa")
	save(t, repo, 2, "other.txt", "x")

	atts, err := repo.List(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(atts) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(atts))
	}
	if atts[0].Filename != "a.txt" {
		t.Fatalf("listing not sorted by filename: %s first", atts[0].Filename)
	}

	count, bytes, err := repo.Stats(1)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 || bytes != 5 {
		t.Fatalf("stats = %d files, %d bytes; want 2, 5", count, bytes)
	}

	// Unknown areas list as empty, not as an error.
	atts, err = repo.List(99)
	if err != nil || atts != nil {
		t.Fatalf("unknown area: got %v, %v", atts, err)
	}
}

func TestDeleteInvokesChangeCallback(t *testing.T) {
	repo := testRepo(t)

	var lastCount int
	var lastBytes int64
	repo.SetChangeFunc(func(areaID int64, count int, bytes int64) {
		lastCount, lastBytes = count, bytes
	})

	att := save(t, repo, 1, "a.txt", "aaa")
	if lastCount != 1 || lastBytes != 3 {
		t.Fatalf("after save: count=%d bytes=%d", lastCount, lastBytes)
	}

	if err := repo.Delete(1, att.ID); err != nil {
		t.Fatal(err)
	}
	if lastCount != 0 || lastBytes != 0 {
		t.Fatalf("after delete: count=%d bytes=%d", lastCount, lastBytes)
	}

	if _, err := repo.Get(1, att.ID); err == nil {
		t.Fatal("metadata survived deletion")
	}
}

func TestRemoveNodeCountsDataFilesOnly(t *testing.T) {
	repo := testRepo(t)

	save(t, repo, 7, "a.txt", "aaa")
	save(t, repo, 7, "b.txt", "bb")

	files, bytes, err := repo.RemoveNode("7")
	if err != nil {
		t.Fatal(err)
	}
	if files != 2 || bytes != 5 {
		t.Fatalf("removed %d files, %d bytes; want 2, 5 (sidecars excluded)", files, bytes)
	}

	nodes, err := repo.AreaNodes()
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		if n == "7" {
			t.Fatal("node still listed after removal")
		}
	}
}

func TestConfineRejectsEscapingNodeNames(t *testing.T) {
	repo := testRepo(t)

	if _, _, err := repo.RemoveNode("../outside"); err == nil {
		t.Fatal("expected confinement error")
	}
}

func TestCleanupRemovesEmptyAreaDirs(t *testing.T) {
	repo := testRepo(t)

	att := save(t, repo, 1, "a.txt", "aaa")
	if err := repo.Delete(1, att.ID); err != nil {
		t.Fatal(err)
	}

	if err := repo.Cleanup(); err != nil {
		t.Fatal(err)
	}
	nodes, err := repo.AreaNodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Fatalf("empty dirs left behind: %v", nodes)
	}
}
