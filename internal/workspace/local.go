// internal/workspace/local.go
package workspace

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lvcs/internal/change"
	"lvcs/internal/entry"
	"lvcs/internal/errors"
	"lvcs/internal/history"
	"lvcs/internal/paths"

	"go.uber.org/zap"
)

// MetaDir holds the history database inside a workspace.
const MetaDir = ".lvcs"

// DefaultIgnoreDirs are never tracked.
var DefaultIgnoreDirs = []string{MetaDir, ".git", "node_modules", "vendor", "dist", "build"}

// FindRoot searches startDir and its parents for the MetaDir directory.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, MetaDir)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NotFound("no %s directory in %s or its parents", MetaDir, startDir)
}

// LocalWorkspace maps a directory on disk to the tracked tree.
type LocalWorkspace struct {
	Root       string
	ignoreDirs map[string]bool
	logger     *zap.Logger
}

func NewLocalWorkspace(root string, ignoreDirs []string, logger *zap.Logger) *LocalWorkspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	ignore := make(map[string]bool, len(ignoreDirs)+1)
	ignore[MetaDir] = true
	for _, d := range ignoreDirs {
		ignore[d] = true
	}
	return &LocalWorkspace{Root: root, ignoreDirs: ignore, logger: logger}
}

// ShouldIgnore reports whether the relative path is outside tracking.
func (w *LocalWorkspace) ShouldIgnore(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignoreDirs[part] {
			return true
		}
	}
	return false
}

// diskEntry is one tracked item found on disk.
type diskEntry struct {
	path    paths.Path
	dir     bool
	content string
}

// read walks the workspace in lexical order.
func (w *LocalWorkspace) read() ([]diskEntry, error) {
	var found []diskEntry
	err := filepath.WalkDir(w.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.Root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if w.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		ep := paths.NewPath(strings.Split(filepath.ToSlash(rel), "/")...)
		switch {
		case d.IsDir():
			found = append(found, diskEntry{path: ep, dir: true})
		case d.Type().IsRegular():
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			found = append(found, diskEntry{path: ep, content: string(data)})
		default:
			w.logger.Debug("skipping non-regular file", zap.String("path", rel))
		}
		return nil
	})
	if err != nil {
		return nil, errors.IOFailure("reading workspace", err)
	}
	return found, nil
}

// Scan adds to b the changes that turn head into the current state of the
// directory. Deletions come first so a path whose kind changed is deleted
// and then created again.
func (w *LocalWorkspace) Scan(head *entry.Root, b *change.Builder) error {
	found, err := w.read()
	if err != nil {
		return err
	}
	onDisk := make(map[string]diskEntry, len(found))
	for _, d := range found {
		onDisk[d.path.String()] = d
	}

	deleted := make(map[string]bool)
	var deletedPaths []paths.Path
	err = head.Walk(func(e entry.Entry) error {
		p := e.Path()
		if deleted[p.Parent().String()] {
			deleted[p.String()] = true
			return nil
		}
		d, ok := onDisk[p.String()]
		if ok && d.dir == e.IsDirectory() {
			return nil
		}
		deleted[p.String()] = true
		deletedPaths = append(deletedPaths, p)
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range deletedPaths {
		if err := b.Delete(p); err != nil {
			return err
		}
	}

	for _, d := range found {
		key := d.path.String()
		existing, err := head.Entry(d.path)
		if err == nil && !deleted[key] {
			if f, ok := existing.(*entry.File); ok && f.Content() != d.content {
				if err := b.ChangeContent(d.path, d.content); err != nil {
					return err
				}
			}
			continue
		}
		if d.dir {
			_, err = b.CreateDirectory(d.path)
		} else {
			_, err = b.CreateFile(d.path, d.content)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Record scans the workspace against the head of h and records the result.
// changed is false when the directory matches the head; nothing is
// recorded then.
func (w *LocalWorkspace) Record(ctx context.Context, h *history.History, label string) (rev history.Revision, changed bool, err error) {
	b := h.NewBuilder()
	b.SetLabel(label)
	if err := w.Scan(h.Head(), b); err != nil {
		return history.Revision{}, false, fmt.Errorf("scanning %s: %w", w.Root, err)
	}
	if b.Len() == 0 {
		return history.Revision{}, false, nil
	}
	rev, err = h.Record(ctx, b.Close())
	if err != nil {
		return history.Revision{}, false, err
	}
	return rev, true, nil
}

// Materialize makes the directory hold exactly root: entries are written
// and untracked, non-ignored files and directories are removed.
func (w *LocalWorkspace) Materialize(root *entry.Root) error {
	if err := os.MkdirAll(w.Root, 0755); err != nil {
		return errors.IOFailure("creating workspace", err)
	}

	err := root.Walk(func(e entry.Entry) error {
		target := w.abs(e.Path())
		if f, ok := e.(*entry.File); ok {
			if info, err := os.Stat(target); err == nil && info.IsDir() {
				if err := os.RemoveAll(target); err != nil {
					return err
				}
			}
			return os.WriteFile(target, []byte(f.Content()), 0644)
		}
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			if err := os.Remove(target); err != nil {
				return err
			}
		}
		return os.MkdirAll(target, 0755)
	})
	if err != nil {
		return errors.IOFailure("writing workspace", err)
	}

	found, err := w.read()
	if err != nil {
		return err
	}
	for _, d := range found {
		if root.HasEntry(d.path) {
			continue
		}
		err := os.RemoveAll(w.abs(d.path))
		if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return errors.IOFailure("removing untracked path", err)
		}
		w.logger.Debug("removed untracked path", zap.String("path", d.path.String()))
	}
	return nil
}

func (w *LocalWorkspace) abs(p paths.Path) string {
	return filepath.Join(append([]string{w.Root}, p.Names()...)...)
}
