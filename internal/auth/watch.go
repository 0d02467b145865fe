package auth

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the provisioning file whenever it changes until ctx is done.
//
// The parent directory is watched rather than the file so editors that replace the file by rename
// are still picked up. A file that fails to parse leaves the previous tokens in place.
func (p *Provisioner) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := p.LoadAndApply(ctx, path); err != nil {
					p.log.Warn("tokens file reload failed", "path", path, "err", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.log.Warn("tokens file watcher error", "err", err)
			}
		}
	}()
	return nil
}
