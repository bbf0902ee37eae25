package app

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"threadsync/pkg/config"
	"threadsync/pkg/logger"
)

const reloadDebounce = 200 * time.Millisecond

// configWatcher reloads the config file when it changes on disk. The parent
// directory is watched so editors that replace the file are still seen.
type configWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*config.Config)

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newConfigWatcher(path string, onChange func(*config.Config)) (*configWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	cw := &configWatcher{path: abs, watcher: w, onChange: onChange, done: make(chan struct{})}
	cw.wg.Add(1)
	go cw.run()
	return cw, nil
}

func (cw *configWatcher) run() {
	defer cw.wg.Done()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-cw.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != cw.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config_watch_error", "error", err)
		case <-fire:
			fire = nil
			cw.reload()
		}
	}
}

func (cw *configWatcher) reload() {
	cfg, err := config.LoadConfigFile(cw.path)
	if err != nil {
		logger.Warn("config_reload_failed", "path", cw.path, "error", err)
		return
	}
	cfg.ApplyDefaults()
	cw.onChange(cfg)
}

func (cw *configWatcher) Close() error {
	var err error
	cw.once.Do(func() {
		close(cw.done)
		err = cw.watcher.Close()
		cw.wg.Wait()
	})
	return err
}
