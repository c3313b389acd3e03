//go:build unix

package chunking

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/codesearch/internal/infrastructure/tokens"
)

func TestChunksSkipNamedPipes(t *testing.T) {
	root := writeTree(t, map[string]string{"a.go": "package a\n"})
	if err := syscall.Mkfifo(filepath.Join(root, "b.pipe"), 0o644); err != nil {
		t.Skipf("mkfifo unsupported: %v", err)
	}

	type outcome struct {
		files []string
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		chunks, err := NewBuilder(tokens.Heuristic{}, nil).Build(context.Background(), root, 100)
		var files []string
		for _, chunk := range chunks {
			files = append(files, chunk.Files...)
		}
		done <- outcome{files: files, err: err}
	}()

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("Build() error = %v", got.err)
		}
		if diff := cmp.Diff([]string{"a.go"}, got.files); diff != "" {
			t.Fatalf("unexpected files (-want +got):\n%s", diff)
		}
	case <-time.After(3 * time.Second):
		// Unblock the pending open so the walk can finish.
		if f, err := os.OpenFile(filepath.Join(root, "b.pipe"), os.O_WRONLY|syscall.O_NONBLOCK, 0); err == nil {
			_ = f.Close()
		}
		t.Fatalf("Build() blocked on a named pipe")
	}
}

func TestChunksFollowSymlinkedFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"real.go": "package real\n"})
	if err := os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "alias.go")); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}
	if err := os.Symlink(t.TempDir(), filepath.Join(root, "linked_dir")); err != nil {
		t.Skipf("symlink unsupported: %v", err)
	}

	chunks, err := NewBuilder(tokens.Heuristic{}, nil).Build(context.Background(), root, 1000)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if diff := cmp.Diff([]string{"alias.go", "real.go"}, chunks[0].Files); diff != "" {
		t.Fatalf("unexpected files (-want +got):\n%s", diff)
	}
}
