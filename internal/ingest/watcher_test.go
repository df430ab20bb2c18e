package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collectPaths(t *testing.T, events <-chan string, want map[string]bool, timeout time.Duration) {
	t.Helper()
	remaining := 0
	for _, seen := range want {
		if !seen {
			remaining++
		}
	}
	deadline := time.After(timeout)
	for remaining > 0 {
		select {
		case p, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed with %d paths outstanding", remaining)
			}
			if seen, tracked := want[p]; tracked && !seen {
				want[p] = true
				remaining--
			}
		case <-deadline:
			t.Fatalf("timed out with %d paths outstanding", remaining)
		}
	}
}

func TestWatcherEmitsCreatedFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, errs, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, Debounce: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	go func() {
		for range errs {
		}
	}()

	want := map[string]bool{}
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("doc-%d.pdf", i))
		want[path] = false
		require.NoError(t, os.WriteFile(path, []byte("pdf bytes"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	collectPaths(t, events, want, 5*time.Second)
}

func TestWatcherCoalescesWriteBursts(t *testing.T) {
	// Rapid writes land while the debounce timer is armed or firing;
	// pending bookkeeping must stay consistent through the overlap.
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, errs, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, Debounce: time.Millisecond}, nil)
	require.NoError(t, err)
	go func() {
		for range errs {
		}
	}()

	want := map[string]bool{}
	for i := 0; i < 20; i++ {
		path := filepath.Join(dir, fmt.Sprintf("burst-%02d.png", i))
		want[path] = false
		require.NoError(t, os.WriteFile(path, []byte("image"), 0o644))
		require.NoError(t, os.WriteFile(path, []byte("image rewritten"), 0o644))
	}

	collectPaths(t, events, want, 10*time.Second)
}

func TestWatcherInitialScanEmitsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "already-there.png")
	require.NoError(t, os.WriteFile(existing, []byte("image"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true}, nil)
	require.NoError(t, err)

	collectPaths(t, events, map[string]bool{existing: false}, 5*time.Second)
}
