package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nickcecere/fpstore/internal/fingerprint"
	"github.com/nickcecere/fpstore/internal/ingest"
	"github.com/nickcecere/fpstore/internal/shard"
)

func setupWatcher(t *testing.T, opts ...Option) (*Watcher, *shard.Store) {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "docs"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "node_modules", "pkg"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".cache"), 0755))

	shards, err := shard.New(filepath.Join(t.TempDir(), "shards"), fingerprint.NewEncoder())
	require.NoError(t, err)

	w, err := New(src, ingest.New(shards), opts...)
	require.NoError(t, err)
	return w, shards
}

func TestNew(t *testing.T) {
	shards, err := shard.New(filepath.Join(t.TempDir(), "shards"), fingerprint.NewEncoder())
	require.NoError(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing"), ingest.New(shards))
	assert.Error(t, err)
}

func TestAddDirectories(t *testing.T) {
	w, _ := setupWatcher(t)

	fw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fw.Close()

	require.NoError(t, w.addDirectories(fw))
	assert.ElementsMatch(t, []string{w.Root(), filepath.Join(w.Root(), "docs")}, fw.WatchList())
}

func TestFlushDebounced(t *testing.T) {
	var events []string
	w, shards := setupWatcher(t, WithEventCallback(func(event, path string) {
		events = append(events, event+":"+path)
	}))

	path := filepath.Join(w.Root(), "docs", "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0644))

	w.queue(path, fsnotify.Create)
	w.flushDebounced(context.Background())

	assert.Equal(t, []string{"ingest:" + filepath.Join("docs", "note.txt")}, events)
	records := shards.FindByFingerprint(3.528, fingerprint.SideUpper, 10)
	require.Len(t, records, 1)
	assert.Equal(t, "hello world", records[0].Text)

	// The queue is drained
	w.flushDebounced(context.Background())
	assert.Len(t, events, 1)

	w.queue(path, fsnotify.Remove)
	w.flushDebounced(context.Background())
	assert.Equal(t, "delete:"+filepath.Join("docs", "note.txt"), events[1])
}

func TestFlushSkipsFilteredFiles(t *testing.T) {
	var events []string
	w, _ := setupWatcher(t,
		WithExtensions([]string{".md"}),
		WithEventCallback(func(event, path string) { events = append(events, event) }),
	)

	path := filepath.Join(w.Root(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0644))

	w.queue(path, fsnotify.Write)
	w.flushDebounced(context.Background())
	assert.Empty(t, events)
}

func TestShouldSkipDir(t *testing.T) {
	w, _ := setupWatcher(t)

	assert.True(t, w.shouldSkipDir(filepath.Join(w.Root(), "node_modules")))
	assert.True(t, w.shouldSkipDir(filepath.Join(w.Root(), ".cache")))
	assert.True(t, w.shouldSkipDir(filepath.Join(w.Root(), ".git")))
	assert.False(t, w.shouldSkipDir(filepath.Join(w.Root(), "docs")))
}

// TestStart tests that a written file is ingested while watching and that
// cancelling stops every goroutine.
func TestStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	ingested := make(chan string, 16)
	w, shards := setupWatcher(t,
		WithDebounceTime(20*time.Millisecond),
		WithEventCallback(func(event, path string) {
			if event != "ingest" {
				return
			}
			select {
			case ingested <- path:
			default:
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Rewrite until the watch is live
	path := filepath.Join(w.Root(), "docs", "note.txt")
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("hello world\n"), 0644); err != nil {
			return false
		}
		select {
		case got := <-ingested:
			return got == filepath.Join("docs", "note.txt")
		default:
			return false
		}
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	assert.NotEmpty(t, shards.FindByFingerprint(3.528, fingerprint.SideUpper, 10))
}
