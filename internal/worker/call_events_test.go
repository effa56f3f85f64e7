package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/scrum-callbot/internal/kafka"
	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmehdipour/scrum-callbot/internal/worker"
)

type fakeConsumer struct {
	in chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func (f *fakeConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.in:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeConsumer) Commit(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeConsumer) offsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

type fakeStore struct {
	mu       sync.Mutex
	failures int
	rows     []model.CallEvent
}

func (s *fakeStore) InsertBatch(_ context.Context, events []model.CallEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("clickhouse unavailable")
	}
	s.rows = append(s.rows, events...)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func eventMessage(t *testing.T, offset int64, id string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.CallEvent{ID: id, CallID: "call-1", ToState: "answered", OccurredAt: time.Now().UTC()})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func run(t *testing.T, w *worker.CallEventsWriter) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, w.Run(ctx))
	}()
	return cancel, done
}

func TestWriterFlushesOnBatchSize(t *testing.T) {
	c := &fakeConsumer{in: make(chan kafka.Message, 10)}
	s := &fakeStore{}
	w := worker.NewCallEventsWriter(c, s, nil)
	w.BatchSize = 3
	w.BatchWait = time.Hour

	cancel, done := run(t, w)
	defer func() { cancel(); <-done }()

	for i := int64(0); i < 3; i++ {
		c.in <- eventMessage(t, i, "ev-"+string(rune('a'+i)))
	}

	require.Eventually(t, func() bool { return s.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{0, 1, 2}, c.offsets())
}

func TestWriterFlushesOnTickAndSkipsPoison(t *testing.T) {
	c := &fakeConsumer{in: make(chan kafka.Message, 10)}
	s := &fakeStore{}
	w := worker.NewCallEventsWriter(c, s, nil)
	w.BatchSize = 100
	w.BatchWait = 20 * time.Millisecond

	cancel, done := run(t, w)
	defer func() { cancel(); <-done }()

	c.in <- kafka.Message{Offset: 7, Value: []byte("{garbage")}
	c.in <- eventMessage(t, 8, "ev-1")

	require.Eventually(t, func() bool { return len(c.offsets()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.count())
}

func TestWriterRetriesFailedBatchBeforeCommitting(t *testing.T) {
	c := &fakeConsumer{in: make(chan kafka.Message, 10)}
	s := &fakeStore{failures: 2}
	w := worker.NewCallEventsWriter(c, s, nil)
	w.BatchSize = 100
	w.BatchWait = 10 * time.Millisecond

	cancel, done := run(t, w)
	defer func() { cancel(); <-done }()

	c.in <- eventMessage(t, 1, "ev-1")

	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1}, c.offsets())
}

func TestWriterFlushesOnShutdown(t *testing.T) {
	c := &fakeConsumer{in: make(chan kafka.Message, 10)}
	s := &fakeStore{}
	w := worker.NewCallEventsWriter(c, s, nil)
	w.BatchSize = 100
	w.BatchWait = time.Hour

	cancel, done := run(t, w)
	c.in <- eventMessage(t, 3, "ev-3")
	require.Eventually(t, func() bool { return len(c.in) == 0 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 1, s.count())
	assert.Equal(t, []int64{3}, c.offsets())
}
