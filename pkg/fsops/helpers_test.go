package fsops

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vdavid/fsops/pkg/fsops/events"
	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

// collector records every event published for an operation and signals
// terminal events on a channel.
type collector struct {
	mu       sync.Mutex
	all      []events.Event
	terminal chan events.Event
}

func newCollector(bus *events.Bus) *collector {
	c := &collector{terminal: make(chan events.Event, 8)}
	handler := events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		c.mu.Lock()
		c.all = append(c.all, event)
		c.mu.Unlock()
		switch event.Type {
		case events.TypeComplete, events.TypeCancelled, events.TypeFailed:
			c.terminal <- event
		}
		return nil
	})
	for _, eventType := range []string{
		events.TypeProgress, events.TypeConflict,
		events.TypeComplete, events.TypeCancelled, events.TypeFailed,
	} {
		bus.Subscribe(eventType, handler)
	}
	return c
}

// wait blocks until a terminal event arrives.
func (c *collector) wait(t *testing.T) events.Event {
	t.Helper()
	select {
	case event := <-c.terminal:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a terminal event")
		return events.Event{}
	}
}

func (c *collector) byType(eventType string) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, event := range c.all {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return newEngineWith(t, vfs.NewLocal("test"), opts...)
}

func newEngineWith(t *testing.T, vol vfs.Volume, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithLogger(NewTestLogger(io.Discard, 0))}
	return New(vol, append(base, opts...)...)
}

// plainVolume hides the Cloner capability of the wrapped volume so tests
// exercise the chunked copy path.
type plainVolume struct {
	vfs.Volume
}

// gateVolume blocks the first Open until released, giving tests a window to
// cancel or inspect a running operation deterministically.
type gateVolume struct {
	vfs.Volume
	gate chan struct{}
	once sync.Once
}

func newGateVolume(inner vfs.Volume) *gateVolume {
	return &gateVolume{Volume: inner, gate: make(chan struct{})}
}

func (g *gateVolume) Open(path string) (io.ReadCloser, error) {
	g.once.Do(func() { <-g.gate })
	return g.Volume.Open(path)
}

func (g *gateVolume) release() { close(g.gate) }

// gatePathVolume blocks Open of one specific path until released and closes
// entered when the block is reached, so tests can act while the operation is
// parked partway through its work list.
type gatePathVolume struct {
	vfs.Volume
	path    string
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatePathVolume(inner vfs.Volume, path string) *gatePathVolume {
	return &gatePathVolume{
		Volume:  inner,
		path:    path,
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
}

func (g *gatePathVolume) Open(path string) (io.ReadCloser, error) {
	if path == g.path {
		g.once.Do(func() {
			close(g.entered)
			<-g.gate
		})
	}
	return g.Volume.Open(path)
}

func (g *gatePathVolume) release() { close(g.gate) }

// crossVolume pretends every pair of paths sits on different filesystems,
// forcing the staged move protocol on a single real volume.
type crossVolume struct {
	vfs.Volume
}

func (c crossVolume) SameVolume(a, b string) (bool, error) { return false, nil }

// failRenameVolume fails renames of the given path once, then behaves
// normally.
type failRenameVolume struct {
	vfs.Volume
	failFrom string
	mu       sync.Mutex
	failed   bool
}

func (f *failRenameVolume) Rename(from, to string) error {
	f.mu.Lock()
	shouldFail := !f.failed && from == f.failFrom
	if shouldFail {
		f.failed = true
	}
	f.mu.Unlock()
	if shouldFail {
		return errors.New("simulated rename failure")
	}
	return f.Volume.Rename(from, to)
}

// failRemoveVolume refuses to remove paths under the given prefix.
type failRemoveVolume struct {
	vfs.Volume
	prefix string
}

func (f *failRemoveVolume) Remove(path string) error {
	if strings.HasPrefix(path, f.prefix) {
		return errors.New("simulated remove failure")
	}
	return f.Volume.Remove(path)
}

// tinySpaceVolume reports almost no free space.
type tinySpaceVolume struct {
	vfs.Volume
}

func (tinySpaceVolume) Space(path string) (vfs.SpaceInfo, error) {
	return vfs.SpaceInfo{Total: 1024, Available: 1}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return string(data)
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); err == nil {
		t.Fatalf("%s should not exist", path)
	}
}
