// Package stream implements the per-connection change-notification loop.
//
// Every connection polls the version counter on its own ticker and reports
// "update" when the value moved since its last look, "ping" otherwise. No
// subscriber registry is kept, so any number of server instances can serve
// streams against the same store.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"diary-sync-server/internal/domain"
)

// ErrVersionUnavailable ends a stream whose counter read failed. Clients are
// expected to reconnect.
var ErrVersionUnavailable = errors.New("version counter unavailable")

type Event struct {
	Name string
	Data interface{}
}

type VersionSource interface {
	Version(ctx context.Context) (int64, error)
}

// Sink delivers events to one client. A Send error ends the stream.
type Sink interface {
	Send(ev Event) error
}

type EventObserver interface {
	ObserveStreamEvent(name string)
}

type Watcher struct {
	source    VersionSource
	interval  time.Duration
	now       func() time.Time
	observer  EventObserver
	newTicker func(d time.Duration) (<-chan time.Time, func())
}

func NewWatcher(source VersionSource, interval time.Duration) *Watcher {
	return &Watcher{
		source:    source,
		interval:  interval,
		now:       time.Now,
		newTicker: realTicker,
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (w *Watcher) WithObserver(obs EventObserver) *Watcher {
	w.observer = obs
	return w
}

func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// Run drives one connection until ctx is cancelled (nil), the counter cannot
// be read (ErrVersionUnavailable) or the sink fails. The ticker is stopped
// exactly once on every exit path.
func (w *Watcher) Run(ctx context.Context, sink Sink) error {
	if err := w.send(sink, domain.EventOpen, domain.OpenPayload{OK: true}); err != nil {
		return err
	}

	lastSeen, err := w.source.Version(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrVersionUnavailable, err)
	}

	ticks, stop := w.newTicker(w.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticks:
			v, err := w.source.Version(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %v", ErrVersionUnavailable, err)
			}

			now := w.now().UnixMilli()
			if v != lastSeen {
				lastSeen = v
				err = w.send(sink, domain.EventUpdate, domain.UpdatePayload{V: v, At: now})
			} else {
				err = w.send(sink, domain.EventPing, now)
			}
			if err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) send(sink Sink, name string, data interface{}) error {
	if err := sink.Send(Event{Name: name, Data: data}); err != nil {
		return fmt.Errorf("failed to send %s event: %w", name, err)
	}
	if w.observer != nil {
		w.observer.ObserveStreamEvent(name)
	}
	return nil
}
