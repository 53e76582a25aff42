package savepoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/roach88/formwalk/internal/instance"
	"github.com/roach88/formwalk/internal/ir"
)

// Savepoint is a recovered snapshot.
type Savepoint struct {
	Path    string
	Index   ir.FormIndex
	Data    *ir.InstanceData
	ModTime time.Time
}

// LoadIfNewer returns the savepoint at path when it should take precedence
// over the instance file: the instance was never saved, or the savepoint
// was written after it. It returns nil when there is nothing to recover.
func LoadIfNewer(path, instancePath string) (*Savepoint, error) {
	sp, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inst, err := os.Stat(instancePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	case !sp.ModTime().After(inst.ModTime()):
		return nil, nil
	}
	return Load(path)
}

// Load reads a savepoint regardless of its age.
func Load(path string) (*Savepoint, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, index, err := instance.Read(path)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return nil, fmt.Errorf("%s: savepoint has no index", path)
	}
	return &Savepoint{Path: path, Index: *index, Data: data, ModTime: fi.ModTime()}, nil
}

// Orphan is a savepoint whose instance file was never written.
type Orphan struct {
	SavepointPath string
	InstancePath  string
	ModTime       time.Time
}

// FindOrphans lists savepoints of formPath in cacheDir that have no instance
// file under instancesDir, newest first.
func FindOrphans(cacheDir, instancesDir, formPath string) ([]Orphan, error) {
	matches, err := filepath.Glob(instance.SavepointGlob(cacheDir, formPath))
	if err != nil {
		return nil, err
	}
	var out []Orphan
	for _, sp := range matches {
		dir, err := instance.InstanceDirFromSavepoint(formPath, sp)
		if err != nil {
			continue
		}
		instPath := instance.InstancePathForDir(instancesDir, dir)
		if _, err := os.Stat(instPath); err == nil {
			continue
		}
		fi, err := os.Stat(sp)
		if err != nil {
			continue
		}
		out = append(out, Orphan{SavepointPath: sp, InstancePath: instPath, ModTime: fi.ModTime()})
	}
	slices.SortFunc(out, func(a, b Orphan) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(b.SavepointPath, a.SavepointPath)
	})
	return out, nil
}

// ReadLastVisitedIndex reads an index file written by
// RecordLastVisitedIndex. ok is false when no index was recorded.
func ReadLastVisitedIndex(path string) (idx ir.FormIndex, ok bool, err error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ir.FormIndex{}, false, nil
	}
	if err != nil {
		return ir.FormIndex{}, false, err
	}
	idx, err = ir.ParseIndex(strings.TrimSpace(string(b)))
	if err != nil {
		return ir.FormIndex{}, false, fmt.Errorf("%s: %w", path, err)
	}
	return idx, true, nil
}
