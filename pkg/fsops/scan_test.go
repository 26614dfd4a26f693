package fsops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

func TestScanSources(t *testing.T) {
	vol := vfs.NewLocal("test")

	t.Run("counts files and bytes, parents first", func(t *testing.T) {
		dir := t.TempDir()
		root := filepath.Join(dir, "tree")
		writeFile(t, filepath.Join(root, "a.txt"), "12345")
		writeFile(t, filepath.Join(root, "sub", "b.txt"), "123")

		st := newOpState("copy-1", KindCopy)
		scan, err := scanSources(vol, []string{root}, st, Config{}.withDefaults())
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		if scan.filesTotal != 2 || scan.bytesTotal != 8 {
			t.Errorf("expected 2 files / 8 bytes, got %d / %d", scan.filesTotal, scan.bytesTotal)
		}
		// tree, a.txt, sub, sub/b.txt
		if len(scan.items) != 4 {
			t.Fatalf("expected 4 items, got %d", len(scan.items))
		}
		if scan.items[0].Path != root {
			t.Errorf("the root should come first, got %s", scan.items[0].Path)
		}
		for i, it := range scan.items[1:] {
			if filepath.Dir(it.Path) == it.Path {
				continue
			}
			found := false
			for _, earlier := range scan.items[:i+1] {
				if earlier.Path == filepath.Dir(it.Path) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("parent of %s should be scanned before it", it.Path)
			}
		}
	})

	t.Run("symlinks are items, never followed", func(t *testing.T) {
		dir := t.TempDir()
		root := filepath.Join(dir, "tree")
		writeFile(t, filepath.Join(root, "real.txt"), "data")
		outside := filepath.Join(dir, "outside")
		writeFile(t, filepath.Join(outside, "big.bin"), "0123456789")
		if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
			t.Fatalf("Symlink failed: %v", err)
		}

		scan, err := scanSources(vol, []string{root}, newOpState("copy-1", KindCopy), Config{}.withDefaults())
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		if scan.bytesTotal != 4 {
			t.Errorf("symlink targets should not be counted, got %d bytes", scan.bytesTotal)
		}
		var sawLink bool
		for _, it := range scan.items {
			if it.IsSymlink() {
				sawLink = true
			}
			if it.Path == filepath.Join(root, "link", "big.bin") {
				t.Error("scan followed a symlink")
			}
		}
		if !sawLink {
			t.Error("the symlink itself should be an item")
		}
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := scanSources(vol, []string{filepath.Join(t.TempDir(), "absent")}, newOpState("copy-1", KindCopy), Config{}.withDefaults())
		if !IsCode(err, CodeSourceNotFound) {
			t.Fatalf("expected SourceNotFound, got %v", err)
		}
	})

	t.Run("revisiting a directory is a loop", func(t *testing.T) {
		dir := t.TempDir()
		root := filepath.Join(dir, "tree")
		writeFile(t, filepath.Join(root, "a.txt"), "x")

		_, err := scanSources(vol, []string{root, root}, newOpState("copy-1", KindCopy), Config{}.withDefaults())
		if !IsCode(err, CodeSymlinkLoopDetected) {
			t.Fatalf("expected SymlinkLoopDetected, got %v", err)
		}
	})

	t.Run("cancellation stops the walk", func(t *testing.T) {
		dir := t.TempDir()
		root := filepath.Join(dir, "tree")
		writeFile(t, filepath.Join(root, "a.txt"), "x")

		st := newOpState("copy-1", KindCopy)
		st.cancel(true)
		_, err := scanSources(vol, []string{root}, st, Config{}.withDefaults())
		if !IsCode(err, CodeCancelled) {
			t.Fatalf("expected Cancelled, got %v", err)
		}
	})
}

func TestScanSortOrder(t *testing.T) {
	vol := vfs.NewLocal("test")
	dir := t.TempDir()
	root := filepath.Join(dir, "tree")
	writeFile(t, filepath.Join(root, "bb.txt"), "1234")
	writeFile(t, filepath.Join(root, "aa.txt"), "12")
	writeFile(t, filepath.Join(root, "cc.txt"), "1")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(root, "cc.txt"), old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	names := func(cfg Config) []string {
		scan, err := scanSources(vol, []string{root}, newOpState("copy-1", KindCopy), cfg.withDefaults())
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		var out []string
		for _, it := range scan.items[1:] {
			out = append(out, filepath.Base(it.Path))
		}
		return out
	}

	t.Run("name ascending is the default", func(t *testing.T) {
		got := names(Config{})
		want := []string{"aa.txt", "bb.txt", "cc.txt"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("size descending", func(t *testing.T) {
		got := names(Config{SortColumn: SortBySize, SortOrder: SortDesc})
		want := []string{"bb.txt", "aa.txt", "cc.txt"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("oldest modification first", func(t *testing.T) {
		got := names(Config{SortColumn: SortByModified})
		if got[0] != "cc.txt" {
			t.Fatalf("expected cc.txt first, got %v", got)
		}
	})
}
