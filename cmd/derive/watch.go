package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ezachrisen/derive"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-initialize the behavior whenever its files change",
		Long: `Initialize the behavior, then watch the behavior XML and the item fixture.
Every change to either file re-reads both and re-initializes the behavior,
which runs a full recompute. A file that fails to load is reported and the
previous behavior stays in place.

Writes are kept in memory; the fixture file is never modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runWatch(ctx context.Context, opts *rootOptions, out io.Writer) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	w := &watcher{opts: opts, out: out, files: map[string]bool{}}
	for _, f := range []string{opts.Config, opts.Items} {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		w.files[abs] = true
		// Editors replace files on save, so watch the directory.
		if err := fw.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watching %s: %w", f, err)
		}
	}

	if err := w.reload(ctx); err != nil {
		printInitError(out, err)
		return err
	}
	return w.loop(ctx, fw.Events, fw.Errors)
}

// watcher owns the current behavior. All reloads happen on the goroutine
// running loop.
type watcher struct {
	opts     *rootOptions
	out      io.Writer
	files    map[string]bool
	behavior *derive.Behavior
	reloads  int
}

func (w *watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-events:
			if !ok {
				return nil
			}
			if !w.relevant(e) {
				continue
			}
			w.opts.logger.Debug("File changed", zap.String("file", e.Name), zap.Stringer("op", e.Op))
			if err := w.reload(ctx); err != nil {
				w.opts.logger.Error("Reload failed; keeping previous behavior", zap.Error(err))
				printInitError(w.out, err)
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.opts.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (w *watcher) relevant(e fsnotify.Event) bool {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) && !e.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(e.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}

// reload reads the behavior and fixture files and initializes a new behavior
// over them. The previous behavior is kept on any failure.
func (w *watcher) reload(ctx context.Context) error {
	repo, err := w.opts.loadRepository()
	if err != nil {
		return err
	}

	b, err := w.opts.newBehavior(repo)
	if err != nil {
		return err
	}

	report, err := b.Initialize(ctx)
	if err != nil {
		return err
	}

	w.behavior = b
	w.reloads++
	fmt.Fprintln(w.out, report)
	return nil
}
