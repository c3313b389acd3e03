package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kirillkom/codesearch/internal/bootstrap"
)

const defaultDebounce = 500 * time.Millisecond

var bannerStyle = lipgloss.NewStyle().Faint(true)

func newWatchCmd(c *cli) *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "watch QUESTION...",
		Short: "Re-run a search whenever files under the root change",
		Long: `watch runs the search once, then again after every burst of file changes under
the root. Chunks whose content did not change are answered from the cache.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := flags.apply(c.cfg)

			sess, closeFn, err := c.open(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()

			excluded := bootstrap.NewChunkBuilder(cfg).Excluded
			if err := watchTree(watcher, flags.root, excluded); err != nil {
				return err
			}

			req := flags.request(strings.Join(args, " "))
			run := func(ctx context.Context) {
				banner := fmt.Sprintf("# %s searching %s", time.Now().Format(time.TimeOnly), flags.root)
				fmt.Fprintln(c.stderr, bannerStyle.Render(banner))
				if err := runOnce(ctx, c.stdout, sess, req, flags); err != nil {
					slog.Error("watch_search_failed", "error", err)
				}
			}
			run(ctx)

			wait := time.Duration(cfg.WatchDebounceMillis) * time.Millisecond
			if wait <= 0 {
				wait = defaultDebounce
			}
			onEvent := func(ev fsnotify.Event) {
				if ev.Has(fsnotify.Create) {
					if err := watchTree(watcher, ev.Name, excluded); err != nil {
						slog.Debug("watch_add_failed", "path", ev.Name, "error", err)
					}
				}
			}
			return watchLoop(ctx, watcher.Events, watcher.Errors, wait, excluded, onEvent, run)
		},
	}
	flags.register(cmd, false)
	return cmd
}

// watchTree adds root and every non-excluded directory below it. A root that is a
// regular file is ignored.
func watchTree(w *fsnotify.Watcher, root string, excluded func(string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && excluded(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// watchLoop calls run once per burst of relevant events, after wait has passed
// without a new one. It returns when ctx ends or the event channel closes.
func watchLoop(
	ctx context.Context,
	events <-chan fsnotify.Event,
	errs <-chan error,
	wait time.Duration,
	excluded func(string) bool,
	onEvent func(fsnotify.Event),
	run func(context.Context),
) error {
	timer := time.NewTimer(wait)
	timer.Stop()
	defer timer.Stop()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || excluded(filepath.Base(ev.Name)) {
				continue
			}
			slog.Debug("watch_event", "path", ev.Name, "op", ev.Op.String())
			onEvent(ev)
			timer.Reset(wait)
			fire = timer.C
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", "error", err)
		case <-fire:
			fire = nil
			run(ctx)
		}
	}
}
