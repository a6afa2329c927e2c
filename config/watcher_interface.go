package config

import "sync"

// Watcher is what the server needs from a configuration source that can
// change at runtime.
type Watcher interface {
	GetCurrentConfig() *Config
	Subscribe() <-chan *Config
	Close() error
}

// StaticWatcher serves a fixed configuration. It is used when the server
// runs without a config file.
type StaticWatcher struct {
	cfg  *Config
	ch   chan *Config
	once sync.Once
}

// NewStaticWatcher wraps cfg.
func NewStaticWatcher(cfg *Config) *StaticWatcher {
	return &StaticWatcher{cfg: cfg, ch: make(chan *Config)}
}

func (w *StaticWatcher) GetCurrentConfig() *Config { return w.cfg }

// Subscribe returns a channel that only ever closes.
func (w *StaticWatcher) Subscribe() <-chan *Config { return w.ch }

func (w *StaticWatcher) Close() error {
	w.once.Do(func() { close(w.ch) })
	return nil
}
