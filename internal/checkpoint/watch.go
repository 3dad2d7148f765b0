package checkpoint

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the current checkpoint and again every time the
// checkpoint file is written, replaced or removed, until ctx is cancelled.
// The parent directory is watched because Save replaces the file by rename.
func Watch(ctx context.Context, store Store, fn func(offset uint64, ok bool)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path := store.Path()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	last, lastOK := store.Load()
	fn(last, lastOK)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			offset, ok := store.Load()
			if offset == last && ok == lastOK {
				continue
			}
			last, lastOK = offset, ok
			fn(offset, ok)

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
		}
	}
}
