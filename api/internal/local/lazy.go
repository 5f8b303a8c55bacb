package local

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnavailable means the local model could not be built. It is permanent
// for the life of the process.
var ErrUnavailable = errors.New("local: model unavailable")

// Loader builds the model. It is called at most once per Lazy.
type Loader func() (Model, error)

// Lazy is an init-once cell for the model. A failed build is cached so
// later callers fail fast instead of retrying the load.
type Lazy struct {
	once  sync.Once
	load  Loader
	model Model
	err   error
}

func NewLazy(load Loader) *Lazy { return &Lazy{load: load} }

// Ready wraps an already built model, for tests and eager start-up.
func Ready(m Model) *Lazy {
	l := &Lazy{model: m}
	l.once.Do(func() {})
	return l
}

func (l *Lazy) Get() (Model, error) {
	l.once.Do(func() {
		if l.load == nil {
			l.err = fmt.Errorf("%w: no loader configured", ErrUnavailable)
			return
		}
		m, err := l.load()
		if err != nil {
			l.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			slog.Error("local: model load failed", "err", err)
			return
		}
		slog.Info("local: model loaded")
		l.model = m
	})
	return l.model, l.err
}

// Close releases the model if it was ever built.
func (l *Lazy) Close() error {
	l.once.Do(func() {
		l.err = fmt.Errorf("%w: closed", ErrUnavailable)
	})
	if l.model == nil {
		return nil
	}
	return l.model.Close()
}
