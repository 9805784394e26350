package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"diary-sync-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	value int64
	err   error
}

func (s *fakeSource) Version(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.err
}

func (s *fakeSource) set(v int64) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type recordingSink struct {
	events chan Event
	err    error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan Event, 16)}
}

func (s *recordingSink) Send(ev Event) error {
	if s.err != nil {
		return s.err
	}
	s.events <- ev
	return nil
}

func (s *recordingSink) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveStreamEvent(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[name]++
}

type manualTicker struct {
	ticks   chan time.Time
	started chan struct{}
	stops   int32
}

// waitStarted returns once the watcher holds its baseline and is ticking.
func (m *manualTicker) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-m.started:
	case <-time.After(time.Second):
		t.Fatal("ticker never started")
	}
}

func (m *manualTicker) stopCount() int32 {
	return atomic.LoadInt32(&m.stops)
}

// manualWatcher returns a watcher whose ticks are driven by the test.
func manualWatcher(src VersionSource) (*Watcher, *manualTicker) {
	mt := &manualTicker{
		ticks:   make(chan time.Time),
		started: make(chan struct{}, 1),
	}
	w := NewWatcher(src, time.Hour)
	w.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	w.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		mt.started <- struct{}{}
		return mt.ticks, func() { atomic.AddInt32(&mt.stops, 1) }
	}
	return w, mt
}

func runAsync(ctx context.Context, w *Watcher, sink Sink) <-chan error {
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, sink) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
		return nil
	}
}

func TestWatcher_UpdateThenPing(t *testing.T) {
	src := &fakeSource{value: 5}
	w, mt := manualWatcher(src)
	obs := &countingObserver{}
	w.WithObserver(obs)
	sink := newRecordingSink()

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, w, sink)

	open := sink.next(t)
	assert.Equal(t, domain.EventOpen, open.Name)
	assert.Equal(t, domain.OpenPayload{OK: true}, open.Data)

	mt.ticks <- time.Now()
	ping := sink.next(t)
	assert.Equal(t, domain.EventPing, ping.Name)
	assert.Equal(t, int64(1_700_000_000_000), ping.Data)

	src.set(6)
	mt.ticks <- time.Now()
	update := sink.next(t)
	assert.Equal(t, domain.EventUpdate, update.Name)
	assert.Equal(t, domain.UpdatePayload{V: 6, At: 1_700_000_000_000}, update.Data)

	mt.ticks <- time.Now()
	assert.Equal(t, domain.EventPing, sink.next(t).Name)

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.Equal(t, int32(1), mt.stopCount())
	assert.Empty(t, sink.events)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, map[string]int{"open": 1, "ping": 2, "update": 1}, obs.counts)
}

func TestWatcher_CoalescesWritesBetweenTicks(t *testing.T) {
	src := &fakeSource{value: 0}
	w, mt := manualWatcher(src)
	sink := newRecordingSink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, w, sink)
	sink.next(t)
	mt.waitStarted(t)

	src.set(1)
	src.set(2)
	src.set(3)
	mt.ticks <- time.Now()

	ev := sink.next(t)
	require.Equal(t, domain.EventUpdate, ev.Name)
	assert.Equal(t, int64(3), ev.Data.(domain.UpdatePayload).V)

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestWatcher_BaselineIsTakenAtOpen(t *testing.T) {
	// A long-lived counter must not look like a change to a fresh connection.
	src := &fakeSource{value: 42}
	w, mt := manualWatcher(src)
	sink := newRecordingSink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, w, sink)
	sink.next(t)

	mt.ticks <- time.Now()
	assert.Equal(t, domain.EventPing, sink.next(t).Name)

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestWatcher_VersionReadFailureEndsStream(t *testing.T) {
	src := &fakeSource{value: 1}
	w, mt := manualWatcher(src)
	sink := newRecordingSink()

	done := runAsync(context.Background(), w, sink)
	sink.next(t)
	mt.waitStarted(t)

	src.fail(errors.New("connection refused"))
	mt.ticks <- time.Now()

	err := waitDone(t, done)
	assert.ErrorIs(t, err, ErrVersionUnavailable)
	assert.Equal(t, int32(1), mt.stopCount())
}

func TestWatcher_BaselineFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	w, mt := manualWatcher(src)
	sink := newRecordingSink()

	err := w.Run(context.Background(), sink)

	assert.ErrorIs(t, err, ErrVersionUnavailable)
	assert.Equal(t, domain.EventOpen, sink.next(t).Name)
	assert.Equal(t, int32(0), mt.stopCount())
}

func TestWatcher_SinkFailureEndsStream(t *testing.T) {
	src := &fakeSource{value: 1}
	w, _ := manualWatcher(src)
	sinkErr := errors.New("broken pipe")
	sink := &recordingSink{events: make(chan Event, 1), err: sinkErr}

	err := w.Run(context.Background(), sink)

	assert.ErrorIs(t, err, sinkErr)
}

func TestWatcher_SinkFailureOnTickStopsTicker(t *testing.T) {
	src := &fakeSource{value: 1}
	w, mt := manualWatcher(src)
	sink := newRecordingSink()

	done := runAsync(context.Background(), w, sink)
	sink.next(t)
	mt.waitStarted(t)

	sink.err = errors.New("client gone")
	mt.ticks <- time.Now()

	assert.Error(t, waitDone(t, done))
	assert.Equal(t, int32(1), mt.stopCount())
}

func TestWatcher_RealTicker(t *testing.T) {
	src := &fakeSource{value: 1}
	w := NewWatcher(src, 20*time.Millisecond)
	sink := newRecordingSink()

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, w, sink)

	assert.Equal(t, domain.EventOpen, sink.next(t).Name)
	assert.Equal(t, domain.EventPing, sink.next(t).Name)

	cancel()
	assert.NoError(t, waitDone(t, done))
}
