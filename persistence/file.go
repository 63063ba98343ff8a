package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/flatagents/flatagents/machine"
)

// File persists snapshots as one JSON file per execution under dir, written
// via a temp-file-then-rename sequence so a reader never observes a partial
// write (atomicity invariant, §4.G). There is no third-party library in the
// example pack for atomic local file writes; this component is the one
// deliberate standard-library-only piece of the persistence tier (see
// DESIGN.md).
type File struct {
	dir string
}

func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) path(id machine.ExecutionId) string {
	return filepath.Join(f.dir, sanitizeID(string(id))+".json")
}

func sanitizeID(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}

func (f *File) Save(ctx context.Context, snap *machine.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "snap-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path(snap.ExecutionId))
}

func (f *File) Load(ctx context.Context, executionID machine.ExecutionId) (*machine.Snapshot, error) {
	raw, err := os.ReadFile(f.path(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var snap machine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (f *File) Delete(ctx context.Context, executionID machine.ExecutionId) error {
	err := os.Remove(f.path(executionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *File) List(ctx context.Context) ([]machine.ExecutionId, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]machine.ExecutionId, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, machine.ExecutionId(strings.TrimSuffix(e.Name(), ".json")))
	}
	return ids, nil
}
