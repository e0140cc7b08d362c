package registry

import (
	"context"
	"fmt"
	"path/filepath"

	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/utils"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads path whenever it is written or replaced and hands the new
// list to onChange. A file that fails to parse is logged and skipped; the
// previous list stays in effect. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func([]robot.Identity)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve robots file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			utils.Logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)

			ids, err := LoadFile(abs)
			if err != nil {
				utils.Logger.Errorf("Ignoring robots file change: %v", err)
				continue
			}
			onChange(ids)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			utils.Logger.Errorf("fsnotify error=%v", err)
		}
	}
}
