// Package inbox imports Markdown files dropped into a directory as notes.
package inbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Dir is the inbox directory. Files at its top level are pending; imported
// files move to processed/ and rejected ones to failed/ next to an .error
// file that explains why.
type Dir struct {
	root string // absolute path
	exts map[string]struct{}
}

// NewDir creates the inbox rooted at root, creating it and its archive
// folders when missing.
func NewDir(root string, exts []string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("inbox: resolve root: %w", err)
	}
	for _, d := range []string{abs, filepath.Join(abs, processedDir), filepath.Join(abs, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("inbox: mkdir %s: %w", d, err)
		}
	}
	if len(exts) == 0 {
		exts = []string{".md"}
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return &Dir{root: abs, exts: set}, nil
}

// Root returns the absolute inbox path.
func (d *Dir) Root() string { return d.root }

// accepts reports whether name is an importable top-level file name.
func (d *Dir) accepts(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsRune(name, filepath.Separator) {
		return false
	}
	_, ok := d.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// safePath resolves a top-level file name and rejects anything that would
// escape the inbox.
func (d *Dir) safePath(name string) (string, error) {
	if filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("inbox: invalid file name: %s", name)
	}
	return filepath.Join(d.root, name), nil
}

// Pending lists importable files waiting in the inbox, oldest first.
func (d *Dir) Pending() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("inbox: list: %w", err)
	}
	type item struct {
		name string
		mod  int64
	}
	var items []item
	for _, e := range entries {
		if e.IsDir() || !d.accepts(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed while listing
		}
		items = append(items, item{e.Name(), info.ModTime().UnixNano()})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].mod != items[j].mod {
			return items[i].mod < items[j].mod
		}
		return items[i].name < items[j].name
	})
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.name
	}
	return out, nil
}

// Read returns the raw bytes of a pending file.
func (d *Dir) Read(name string) ([]byte, error) {
	abs, err := d.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("inbox: read %s: %w", name, err)
	}
	return data, nil
}

// Archive moves an imported file to processed/.
func (d *Dir) Archive(name string) error {
	return d.move(name, processedDir)
}

// Reject moves a file to failed/ and records reason beside it.
func (d *Dir) Reject(name, reason string) error {
	if err := d.move(name, failedDir); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(d.root, failedDir, name+".error"), []byte(reason+"\n"))
}

func (d *Dir) move(name, sub string) error {
	src, err := d.safePath(name)
	if err != nil {
		return err
	}
	dst := filepath.Join(d.root, sub, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		dst = filepath.Join(d.root, sub, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), time.Now().UnixNano(), ext))
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("inbox: move %s to %s: %w", name, sub, err)
	}
	return nil
}

// writeAtomic writes content: tmp file → fsync → rename.
func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".noteweave-tmp-*")
	if err != nil {
		return fmt.Errorf("inbox: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("inbox: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("inbox: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("inbox: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("inbox: rename: %w", err)
	}
	success = true
	return nil
}
