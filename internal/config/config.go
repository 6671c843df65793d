// Package config loads the daemon's YAML configuration and watches it
// for changes, reporting changes to the safe-to-change-live subset to a
// callback.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ninevoltz/rgbsdk/pkg/log"
)

// Config is the daemon's full configuration document.
type Config struct {
	// Listen is the set of "host:port" addresses to bind.
	Listen []string `yaml:"listen"`
	// RecvTimeout bounds how long a session blocks in recv() before
	// treating the connection as dead.
	RecvTimeout time.Duration `yaml:"recv_timeout"`
	// QueueDepth is the per-controller worker's back-pressure
	// watermark.
	QueueDepth int `yaml:"queue_depth"`
	// LegacyProtocol0 serves protocol version 0 to sessions that never
	// negotiate a protocol version.
	LegacyProtocol0 bool `yaml:"legacy_protocol_0"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Listen:      []string{":6742"},
		RecvTimeout: 5 * time.Second,
		QueueDepth:  64,
	}
}

// Load reads and parses the YAML document at path. A missing file is
// not an error: DefaultConfig is returned instead, since the daemon is
// expected to run standalone out of the box.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// reloadable is the subset of Config that may change live without
// requiring the listeners to be rebound; listen addresses affect
// socket lifecycle and are intentionally excluded from hot reload.
type reloadable struct {
	RecvTimeout     time.Duration
	QueueDepth      int
	LegacyProtocol0 bool
}

func (c Config) reloadablePart() reloadable {
	return reloadable{RecvTimeout: c.RecvTimeout, QueueDepth: c.QueueDepth, LegacyProtocol0: c.LegacyProtocol0}
}

// Watcher watches a config file on disk and invokes onChange with the
// newly parsed Config whenever the safe-to-change-live subset differs
// from what was last applied. Changes to Listen are not compared, so a
// change to Listen alone is neither logged nor reported.
type Watcher struct {
	path      string
	log       log.Logger
	fsw       *fsnotify.Watcher
	mu        sync.Mutex
	lastLive  reloadable
	onChange  func(Config)
	closeOnce sync.Once
}

// NewWatcher starts watching path, invoking onChange from a background
// goroutine whenever the live-reloadable part of the config changes.
// initial is the Config currently in effect, used as the change
// baseline.
func NewWatcher(path string, initial Config, onChange func(Config), logger log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:     path,
		log:      logger,
		fsw:      fsw,
		lastLive: initial.reloadablePart(),
		onChange: onChange,
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnf("config watcher: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warnf("config: reload %s: %v", w.path, err)
		return
	}

	w.mu.Lock()
	live := cfg.reloadablePart()
	changed := live != w.lastLive
	w.lastLive = live
	w.mu.Unlock()

	if changed {
		w.log.Infof("config: live-reloadable settings changed in %s", w.path)
		w.onChange(cfg)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.fsw.Close() })
	return err
}
