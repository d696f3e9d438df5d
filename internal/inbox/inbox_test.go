package inbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/noteweave/internal/apperr"
	"github.com/starford/noteweave/internal/models"
	"github.com/starford/noteweave/internal/noteservice"
	"github.com/starford/noteweave/internal/store"
	"github.com/starford/noteweave/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func testInbox(t *testing.T) (*Dir, *noteservice.Service, *store.DB) {
	t.Helper()
	dir, err := NewDir(filepath.Join(t.TempDir(), "inbox"), nil)
	if err != nil {
		t.Fatal(err)
	}
	db := testutil.TestStore(t)
	svc := noteservice.NewService(db, noteservice.Deps{}, noteservice.Config{}, quietLogger())
	return dir, svc, db
}

func TestNewDir_CreatesArchiveFolders(t *testing.T) {
	dir, _, _ := testInbox(t)
	for _, sub := range []string{processedDir, failedDir} {
		if info, err := os.Stat(filepath.Join(dir.Root(), sub)); err != nil || !info.IsDir() {
			t.Errorf("%s missing: %v", sub, err)
		}
	}
}

func TestPending_FiltersAndOrders(t *testing.T) {
	dir, _, _ := testInbox(t)
	root := dir.Root()
	_ = os.WriteFile(filepath.Join(root, "b.md"), []byte("b"), 0o644)
	old := time.Now().Add(-time.Hour)
	_ = os.WriteFile(filepath.Join(root, "a.md"), []byte("a"), 0o644)
	_ = os.Chtimes(filepath.Join(root, "a.md"), old, old)
	_ = os.WriteFile(filepath.Join(root, "skip.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(root, ".hidden.md"), []byte("x"), 0o644)

	got, err := dir.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a.md" || got[1] != "b.md" {
		t.Errorf("pending = %v, want [a.md b.md]", got)
	}
}

func TestRead_TraversalBlocked(t *testing.T) {
	dir, _, _ := testInbox(t)
	for _, name := range []string{"../outside.md", "sub/x.md", ".."} {
		if _, err := dir.Read(name); err == nil {
			t.Errorf("Read(%q) should fail", name)
		}
	}
}

func TestReject_WritesReason(t *testing.T) {
	dir, _, _ := testInbox(t)
	_ = os.WriteFile(filepath.Join(dir.Root(), "bad.md"), []byte("x"), 0o644)

	if err := dir.Reject("bad.md", "validation failed: content required"); err != nil {
		t.Fatal(err)
	}
	if exists(filepath.Join(dir.Root(), "bad.md")) {
		t.Error("rejected file still pending")
	}
	reason, err := os.ReadFile(filepath.Join(dir.Root(), failedDir, "bad.md.error"))
	if err != nil {
		t.Fatal(err)
	}
	if string(reason) != "validation failed: content required\n" {
		t.Errorf("reason = %q", reason)
	}
}

func TestArchive_NameCollision(t *testing.T) {
	dir, _, _ := testInbox(t)
	for i := 0; i < 2; i++ {
		_ = os.WriteFile(filepath.Join(dir.Root(), "same.md"), []byte("x"), 0o644)
		if err := dir.Archive("same.md"); err != nil {
			t.Fatalf("archive %d: %v", i, err)
		}
	}
	entries, _ := os.ReadDir(filepath.Join(dir.Root(), processedDir))
	if len(entries) != 2 {
		t.Errorf("processed entries = %d, want 2", len(entries))
	}
}

func TestSweep(t *testing.T) {
	dir, svc, db := testInbox(t)
	root := dir.Root()
	_ = os.WriteFile(filepath.Join(root, "idea.md"), []byte("# Idea\nsomething worth keeping"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "dup.md"), []byte("# Idea\nsomething worth keeping"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "empty.md"), []byte("   "), 0o644)

	w := NewWatcher(dir, svc, 0, 0, quietLogger())
	if n := w.Sweep(context.Background()); n != 1 {
		t.Errorf("imported = %d, want 1", n)
	}

	notes, err := db.ListNotes(context.Background(), store.NoteFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Title != "Idea" || notes[0].Status != models.StatusPending {
		t.Errorf("notes = %+v", notes)
	}
	if pending, _ := dir.Pending(); len(pending) != 0 {
		t.Errorf("still pending: %v", pending)
	}
	if !exists(filepath.Join(root, failedDir, "empty.md.error")) {
		t.Error("empty file should be rejected")
	}
}

// flakyImporter fails with an unavailable store for its first failures
// calls, then hands over to next. A nil next fails forever.
type flakyImporter struct {
	mu       sync.Mutex
	calls    int
	failures int
	next     Importer
}

func (f *flakyImporter) ImportMarkdown(ctx context.Context, name string, data []byte) (*models.Note, error) {
	f.mu.Lock()
	f.calls++
	fail := f.next == nil || f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, apperr.Unavailable("store: insert note", os.ErrDeadlineExceeded)
	}
	return f.next.ImportMarkdown(ctx, name, data)
}

func TestSweep_UnavailableLeavesFile(t *testing.T) {
	dir, _, _ := testInbox(t)
	_ = os.WriteFile(filepath.Join(dir.Root(), "later.md"), []byte("x"), 0o644)

	w := NewWatcher(dir, &flakyImporter{}, 0, 0, quietLogger())
	if n := w.Sweep(context.Background()); n != 0 {
		t.Errorf("imported = %d, want 0", n)
	}
	if !exists(filepath.Join(dir.Root(), "later.md")) {
		t.Error("file should stay for retry")
	}
}

func TestWatcher_ImportsDroppedFile(t *testing.T) {
	dir, svc, db := testInbox(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = os.WriteFile(filepath.Join(dir.Root(), "before.md"), []byte("waiting before start"), 0o644)

	w := NewWatcher(dir, svc, 50*time.Millisecond, 0, quietLogger())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return exists(filepath.Join(dir.Root(), processedDir, "before.md"))
	}, "existing file not imported at start")

	_ = os.WriteFile(filepath.Join(dir.Root(), "link.md"), []byte("---\ntype: link\nurl: https://go.dev\n---\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := db.CountNotes(context.Background(), store.NoteFilter{Type: models.NoteTypeLink})
		return n == 1
	}, "dropped file not imported by watcher")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop")
	}
}

func TestWatcher_RetriesFailedImports(t *testing.T) {
	dir, svc, db := testInbox(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = os.WriteFile(filepath.Join(dir.Root(), "retry.md"), []byte("store was down"), 0o644)

	imp := &flakyImporter{failures: 1, next: svc}
	w := NewWatcher(dir, imp, time.Hour, 50*time.Millisecond, quietLogger())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// No further fsnotify event arrives; only the retry sweep can import it.
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return exists(filepath.Join(dir.Root(), processedDir, "retry.md"))
	}, "failed import was not retried")

	n, err := db.CountNotes(context.Background(), store.NoteFilter{})
	if err != nil || n != 1 {
		t.Errorf("notes = %d, %v; want 1", n, err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop")
	}
}
