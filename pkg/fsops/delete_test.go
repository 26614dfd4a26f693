package fsops

import (
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vdavid/fsops/pkg/fsops/events"
)

// dirInfo is a minimal fs.FileInfo for synthetic directory items.
type dirInfo struct{}

func (dirInfo) Name() string       { return "" }
func (dirInfo) Size() int64        { return 0 }
func (dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o755 }
func (dirInfo) ModTime() time.Time { return time.Time{} }
func (dirInfo) IsDir() bool        { return true }
func (dirInfo) Sys() any           { return nil }

func TestDeleteTree(t *testing.T) {
	e := newTestEngine(t)
	c := newCollector(e.Bus())

	dir := t.TempDir()
	root := filepath.Join(dir, "junk")
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "deep", "deeper", "b.txt"), "b")
	if err := os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "a.link")); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}
	keep := filepath.Join(dir, "keep.txt")
	writeFile(t, keep, "not deleted")

	if _, err := e.Delete([]string{root}, Config{}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	event := c.wait(t)
	if event.Type != events.TypeComplete {
		t.Fatalf("expected completion, got %s: %+v", event.Type, event.Data)
	}
	mustNotExist(t, root)
	if readFile(t, keep) != "not deleted" {
		t.Error("unrelated files should survive")
	}
}

func TestDeleteMissingSource(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Delete([]string{filepath.Join(t.TempDir(), "ghost")}, Config{})
	if !IsCode(err, CodeSourceNotFound) {
		t.Fatalf("expected SourceNotFound, got %v", err)
	}
}

func TestOrderDirsForDelete(t *testing.T) {
	mkItem := func(path string) Item {
		return Item{Path: path, Root: "/r", Info: dirInfo{}}
	}

	t.Run("children come before parents", func(t *testing.T) {
		dirs := []Item{
			mkItem("/r"),
			mkItem("/r/a"),
			mkItem("/r/a/b"),
			mkItem("/r/c"),
		}
		rand.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })

		ordered, err := orderDirsForDelete(dirs)
		if err != nil {
			t.Fatalf("orderDirsForDelete failed: %v", err)
		}
		pos := make(map[string]int, len(ordered))
		for i, p := range ordered {
			pos[p] = i
		}
		for _, pair := range [][2]string{{"/r/a/b", "/r/a"}, {"/r/a", "/r"}, {"/r/c", "/r"}} {
			if pos[pair[0]] > pos[pair[1]] {
				t.Errorf("%s should be removed before %s: %v", pair[0], pair[1], ordered)
			}
		}
	})

	t.Run("unrelated directories are kept", func(t *testing.T) {
		ordered, err := orderDirsForDelete([]Item{mkItem("/x"), mkItem("/y")})
		if err != nil {
			t.Fatalf("orderDirsForDelete failed: %v", err)
		}
		if len(ordered) != 2 {
			t.Errorf("expected both directories, got %v", ordered)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		ordered, err := orderDirsForDelete(nil)
		if err != nil || ordered != nil {
			t.Errorf("expected nothing, got %v / %v", ordered, err)
		}
	})
}
