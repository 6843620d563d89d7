package jobs

import (
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/transferbox/transferbox/internal/area"
	"github.com/transferbox/transferbox/internal/content"
	"github.com/transferbox/transferbox/internal/db"
	"github.com/transferbox/transferbox/internal/directory"
	"github.com/transferbox/transferbox/internal/notify"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func testAreaStore(t *testing.T, database *db.DB) *area.Store {
	t.Helper()
	return area.NewStore(database.DB, area.Limits{
		MaxUploadKB:         1000,
		PersonalBoxUploadKB: 100,
	}, zerolog.Nop())
}

type fakeMailer struct {
	sent []*notify.Message
}

func (m *fakeMailer) Send(msg *notify.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type fakeUsers map[int64]*directory.User

func (u fakeUsers) GetByID(id int64) (*directory.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, fmt.Errorf("user %d not found", id)
	}
	return user, nil
}

func testUser(id int64, name string) *directory.User {
	return &directory.User{ID: id, Username: name, DisplayName: name, Email: name + "@example.org"}
}

func noGroups(userID int64, groupIDs []int64) (bool, error) { return false, nil }

func testEngine(users fakeUsers, mailer *fakeMailer) *notify.Engine {
	return notify.NewEngine(area.NewChecker(noGroups), users, mailer, "https://box.example.org", zerolog.Nop())
}

// fakeContentRepo is an in-memory content.Repository for job tests. Orphan
// nodes (child names with no backing attachment list) can be injected
// directly.
type fakeContentRepo struct {
	atts        map[int64][]*content.Attachment
	orphans     map[string]orphanNode
	deletedIDs  []string
	removedDirs []string
	cleanedUp   bool
	listErr     map[int64]error
}

type orphanNode struct {
	files int
	bytes int64
}

func newFakeContentRepo() *fakeContentRepo {
	return &fakeContentRepo{
		atts:    make(map[int64][]*content.Attachment),
		orphans: make(map[string]orphanNode),
		listErr: make(map[int64]error),
	}
}

func (r *fakeContentRepo) Save(att *content.Attachment, _ io.Reader) error {
	r.atts[att.AreaID] = append(r.atts[att.AreaID], att)
	return nil
}

func (r *fakeContentRepo) Open(areaID int64, id string) (io.ReadCloser, *content.Attachment, error) {
	att, err := r.Get(areaID, id)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(nil), att, nil
}

func (r *fakeContentRepo) Get(areaID int64, id string) (*content.Attachment, error) {
	for _, att := range r.atts[areaID] {
		if att.ID == id {
			return att, nil
		}
	}
	return nil, fmt.Errorf("attachment %s not found", id)
}

func (r *fakeContentRepo) List(areaID int64) ([]*content.Attachment, error) {
	if err := r.listErr[areaID]; err != nil {
		return nil, err
	}
	return r.atts[areaID], nil
}

func (r *fakeContentRepo) UpdateMeta(att *content.Attachment) error { return nil }

func (r *fakeContentRepo) Delete(areaID int64, id string) error {
	kept := r.atts[areaID][:0]
	for _, att := range r.atts[areaID] {
		if att.ID == id {
			r.deletedIDs = append(r.deletedIDs, id)
			continue
		}
		kept = append(kept, att)
	}
	r.atts[areaID] = kept
	return nil
}

func (r *fakeContentRepo) Stats(areaID int64) (int, int64, error) {
	var bytes int64
	for _, att := range r.atts[areaID] {
		bytes += att.SizeBytes
	}
	return len(r.atts[areaID]), bytes, nil
}

func (r *fakeContentRepo) AreaNodes() ([]string, error) {
	var names []string
	for areaID := range r.atts {
		names = append(names, fmt.Sprintf("%d", areaID))
	}
	for name := range r.orphans {
		names = append(names, name)
	}
	return names, nil
}

func (r *fakeContentRepo) RemoveNode(name string) (int, int64, error) {
	node, ok := r.orphans[name]
	if !ok {
		return 0, 0, fmt.Errorf("node %s not found", name)
	}
	delete(r.orphans, name)
	r.removedDirs = append(r.removedDirs, name)
	return node.files, node.bytes, nil
}

func (r *fakeContentRepo) Cleanup() error {
	r.cleanedUp = true
	return nil
}
