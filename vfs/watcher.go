package vfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/unkn0wn-root/gist"
)

// Watch follows dir on the OS filesystem and bumps the modification count of
// every tracked file that is written, created, renamed or removed. onChange,
// if non-nil, is called with the cleaned path after the bump. Watch blocks
// until ctx is done.
func (f *FS) Watch(ctx context.Context, dir string, onChange func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := addRecursive(w, dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	f.log.Info("watching", gist.Fields{"dir": dir})

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addRecursive(w, ev.Name)
					continue
				}
			}
			p := filepath.Clean(ev.Name)
			f.Touch(p)
			f.log.Debug("file changed", gist.Fields{"path": p, "op": ev.Op.String()})
			if onChange != nil {
				onChange(p)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.log.Warn("watch error", gist.Fields{"dir": dir, "err": err})
		}
	}
}

func addRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
