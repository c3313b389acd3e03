package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func noneExcluded(string) bool { return false }

func TestWatchLoopDebouncesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan fsnotify.Event)
	runs := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, events, nil, 30*time.Millisecond, noneExcluded, func(fsnotify.Event) {}, func(context.Context) {
			runs <- struct{}{}
		})
	}()

	for range 5 {
		events <- fsnotify.Event{Name: "a.go", Op: fsnotify.Write}
	}

	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatalf("search did not run after a burst")
	}
	select {
	case <-runs:
		t.Fatalf("one burst must trigger one run")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWatchLoopIgnoresChmodAndExcluded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan fsnotify.Event)
	var seen atomic.Int32
	var runs atomic.Int32
	done := make(chan error, 1)
	excluded := func(name string) bool { return name == ".git" }
	go func() {
		done <- watchLoop(ctx, events, nil, 10*time.Millisecond, excluded,
			func(fsnotify.Event) { seen.Add(1) },
			func(context.Context) { runs.Add(1) })
	}()

	events <- fsnotify.Event{Name: "a.go", Op: fsnotify.Chmod}
	events <- fsnotify.Event{Name: filepath.Join("repo", ".git"), Op: fsnotify.Create}
	time.Sleep(50 * time.Millisecond)

	close(events)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.Load() != 0 || runs.Load() != 0 {
		t.Fatalf("ignored events reached handlers: seen=%d runs=%d", seen.Load(), runs.Load())
	}
}

func TestWatchTreeSkipsExcludedDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"pkg/inner", ".git/objects"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	if err := watchTree(w, root, func(name string) bool { return name == ".git" }); err != nil {
		t.Fatalf("watch tree: %v", err)
	}
	watched := make(map[string]bool)
	for _, path := range w.WatchList() {
		watched[path] = true
	}
	for _, path := range []string{root, filepath.Join(root, "pkg"), filepath.Join(root, "pkg", "inner")} {
		if !watched[path] {
			t.Fatalf("expected %s to be watched, got %v", path, w.WatchList())
		}
	}
	if watched[filepath.Join(root, ".git")] {
		t.Fatalf("excluded directory is watched")
	}
}
