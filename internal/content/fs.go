package content

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const metaSuffix = ".meta.json"

// FSRepository stores attachments on the local filesystem: one directory
// per area named by its id, one data file per attachment named by a uuid,
// plus a metadata sidecar.
type FSRepository struct {
	root     string
	onChange ChangeFunc
	log      zerolog.Logger
}

// NewFSRepository creates a filesystem repository rooted at the given
// directory, creating it if needed.
func NewFSRepository(root string, log zerolog.Logger) (*FSRepository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create content root %s: %w", abs, err)
	}
	return &FSRepository{
		root: abs,
		log:  log.With().Str("component", "content").Logger(),
	}, nil
}

// SetChangeFunc installs the callback invoked after content mutations.
func (r *FSRepository) SetChangeFunc(fn ChangeFunc) {
	r.onChange = fn
}

// Save stores the attachment bytes and metadata, assigning its ID.
func (r *FSRepository) Save(att *Attachment, reader io.Reader) error {
	att.ID = uuid.NewString()
	now := time.Now()
	att.CreatedAt = now
	att.UpdatedAt = now

	dir, err := r.areaDir(att.AreaID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create area dir %s: %w", dir, err)
	}

	dataPath := filepath.Join(dir, att.ID)
	f, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("create attachment file: %w", err)
	}
	written, err := io.Copy(f, reader)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dataPath)
		return fmt.Errorf("write attachment %s: %w", att.ID, err)
	}
	att.SizeBytes = written

	if err := r.writeMeta(dir, att); err != nil {
		os.Remove(dataPath)
		return err
	}

	r.notifyChange(att.AreaID)
	return nil
}

// Open returns the attachment bytes and metadata.
func (r *FSRepository) Open(areaID int64, id string) (io.ReadCloser, *Attachment, error) {
	att, err := r.Get(areaID, id)
	if err != nil {
		return nil, nil, err
	}
	dir, err := r.areaDir(areaID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(dir, id))
	if err != nil {
		return nil, nil, fmt.Errorf("open attachment %s: %w", id, err)
	}
	return f, att, nil
}

// Get returns attachment metadata.
func (r *FSRepository) Get(areaID int64, id string) (*Attachment, error) {
	dir, err := r.areaDir(areaID)
	if err != nil {
		return nil, err
	}
	return r.readMeta(filepath.Join(dir, id+metaSuffix))
}

// List returns all attachments of an area, ordered by filename.
func (r *FSRepository) List(areaID int64) ([]*Attachment, error) {
	dir, err := r.areaDir(areaID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list area dir %s: %w", dir, err)
	}

	var atts []*Attachment
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		att, err := r.readMeta(filepath.Join(dir, entry.Name()))
		if err != nil {
			r.log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable attachment metadata")
			continue
		}
		atts = append(atts, att)
	}
	sortAttachments(atts)
	return atts, nil
}

// UpdateMeta rewrites an attachment's filename and description.
func (r *FSRepository) UpdateMeta(att *Attachment) error {
	dir, err := r.areaDir(att.AreaID)
	if err != nil {
		return err
	}
	att.UpdatedAt = time.Now()
	if err := r.writeMeta(dir, att); err != nil {
		return err
	}
	r.notifyChange(att.AreaID)
	return nil
}

// Delete removes one attachment and its metadata.
func (r *FSRepository) Delete(areaID int64, id string) error {
	dir, err := r.areaDir(areaID)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete attachment %s: %w", id, err)
	}
	if err := os.Remove(filepath.Join(dir, id+metaSuffix)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete attachment metadata %s: %w", id, err)
	}
	r.notifyChange(areaID)
	return nil
}

// Stats returns the area's attachment count and byte total.
func (r *FSRepository) Stats(areaID int64) (int, int64, error) {
	atts, err := r.List(areaID)
	if err != nil {
		return 0, 0, err
	}
	var bytes int64
	for _, att := range atts {
		bytes += att.SizeBytes
	}
	return len(atts), bytes, nil
}

// AreaNodes lists the names of the direct child directories under the root.
func (r *FSRepository) AreaNodes() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("list content root: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// RemoveNode deletes an entire child directory and reports how many data
// files and bytes were reclaimed. Metadata sidecars are not counted.
func (r *FSRepository) RemoveNode(name string) (int, int64, error) {
	dir, err := r.confine(filepath.Join(r.root, name))
	if err != nil {
		return 0, 0, err
	}

	var files int
	var bytes int64
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(d.Name(), metaSuffix) {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("walk node %s: %w", name, err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return 0, 0, fmt.Errorf("remove node %s: %w", name, err)
	}
	return files, bytes, nil
}

// Cleanup removes empty area directories left behind by deletions.
func (r *FSRepository) Cleanup() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("list content root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, entry.Name())
		children, err := os.ReadDir(dir)
		if err != nil || len(children) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			r.log.Debug().Str("dir", entry.Name()).Msg("removed empty area directory")
		}
	}
	return nil
}

// areaDir returns the confined directory path for an area.
func (r *FSRepository) areaDir(areaID int64) (string, error) {
	return r.confine(filepath.Join(r.root, strconv.FormatInt(areaID, 10)))
}

// confine rejects any path that escapes the repository root.
func (r *FSRepository) confine(path string) (string, error) {
	clean := filepath.Clean(path)
	if clean != r.root && !strings.HasPrefix(clean, r.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes content root", path)
	}
	return clean, nil
}

func (r *FSRepository) writeMeta(dir string, att *Attachment) error {
	data, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("encode attachment metadata: %w", err)
	}
	path := filepath.Join(dir, att.ID+metaSuffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write attachment metadata %s: %w", path, err)
	}
	return nil
}

func (r *FSRepository) readMeta(path string) (*Attachment, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("attachment metadata %s: %w", path, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("read attachment metadata %s: %w", path, err)
	}
	att := &Attachment{}
	if err := json.Unmarshal(data, att); err != nil {
		return nil, fmt.Errorf("decode attachment metadata %s: %w", path, err)
	}
	return att, nil
}

func (r *FSRepository) notifyChange(areaID int64) {
	if r.onChange == nil {
		return
	}
	count, bytes, err := r.Stats(areaID)
	if err != nil {
		r.log.Warn().Err(err).Int64("area", areaID).Msg("failed to refresh attachment stats")
		return
	}
	r.onChange(areaID, count, bytes)
}

func sortAttachments(atts []*Attachment) {
	sort.Slice(atts, func(i, j int) bool { return atts[i].Filename < atts[j].Filename })
}
