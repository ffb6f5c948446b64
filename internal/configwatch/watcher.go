// Package configwatch re-reads the config file when it changes on disk and
// hands the result to a callback. Only the safely hot-reloadable subset is
// meant to be applied; everything else requires a restart.
package configwatch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jfolker/bigpicture/internal/config"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher monitors one config file.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(config.Config)
}

// New returns a Watcher that invokes onChange with each successfully
// re-loaded config.
func New(path string, onChange func(config.Config)) *Watcher {
	return &Watcher{
		path:     path,
		debounce: defaultDebounce,
		onChange: onChange,
	}
}

// Run watches until ctx is done. Editors replace files by rename, so the
// parent directory is watched and events are filtered to the config file.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Debounce bursts of writes from editors and provisioning tools.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher")

		case <-fire:
			cfg, err := config.Load(w.path)
			if err != nil {
				logger.Warn().Err(err).Str("path", w.path).Msg("ignoring config change")
				continue
			}
			logger.Info().Str("path", w.path).Msg("config file changed")
			w.onChange(cfg)
		}
	}
}
