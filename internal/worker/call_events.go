package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/kafka"
	"github.com/jmehdipour/scrum-callbot/internal/metrics"
	"github.com/jmehdipour/scrum-callbot/internal/model"
)

type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

type CallEventsStore interface {
	InsertBatch(ctx context.Context, events []model.CallEvent) error
}

// CallEventsWriter moves lifecycle events from Kafka to the report store in batches.
// Offsets are committed only after the batch containing them is stored.
type CallEventsWriter struct {
	Consumer  Consumer
	Store     CallEventsStore
	Log       *zap.Logger
	BatchSize int
	BatchWait time.Duration
}

func NewCallEventsWriter(consumer Consumer, store CallEventsStore, log *zap.Logger) *CallEventsWriter {
	return &CallEventsWriter{
		Consumer:  consumer,
		Store:     store,
		Log:       log,
		BatchSize: 200,
		BatchWait: 500 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled, then flushes what it holds.
func (w *CallEventsWriter) Run(ctx context.Context) error {
	if w.BatchSize <= 0 {
		w.BatchSize = 200
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 500 * time.Millisecond
	}
	if w.Log == nil {
		w.Log = zap.NewNop()
	}

	msgCh := make(chan kafka.Message, w.BatchSize)
	go w.fetch(ctx, msgCh)

	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	var (
		events []model.CallEvent
		msgs   []kafka.Message
	)

	flush := func(ctx context.Context) {
		if len(msgs) == 0 {
			return
		}
		if err := w.Store.InsertBatch(ctx, events); err != nil {
			metrics.CallEventsFlushed.WithLabelValues("error").Add(float64(len(events)))
			// kept for the next tick
			w.Log.Error("call events insert failed", zap.Int("count", len(events)), zap.Error(err))
			return
		}
		metrics.CallEventsFlushed.WithLabelValues("ok").Add(float64(len(events)))
		if err := w.Consumer.Commit(ctx, msgs...); err != nil {
			w.Log.Warn("kafka commit failed", zap.Error(err))
		}
		w.Log.Debug("call events flushed", zap.Int("events", len(events)), zap.Int("messages", len(msgs)))
		events = events[:0]
		msgs = msgs[:0]
	}

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(fctx)
			cancel()
			return nil

		case m, ok := <-msgCh:
			if !ok {
				msgCh = nil
				continue
			}
			msgs = append(msgs, m)

			var ev model.CallEvent
			if err := json.Unmarshal(m.Value, &ev); err != nil || ev.ID == "" {
				metrics.CallEventsFlushed.WithLabelValues("poison").Inc()
				w.Log.Warn("skipping undecodable call event",
					zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
				continue
			}
			events = append(events, ev)

			if len(msgs) >= w.BatchSize {
				flush(ctx)
			}

		case <-tick.C:
			flush(ctx)
		}
	}
}

func (w *CallEventsWriter) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := w.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}
