package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/config"
	"github.com/jmehdipour/scrum-callbot/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes call lifecycle events keyed by call id, so one call's events stay ordered
// within a partition.
type Producer struct {
	w   messageWriter
	log *zap.Logger
}

// NewProducer builds an async writer: Publish only enqueues, delivery errors are logged.
func NewProducer(c config.KafkaConfig, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn("call events delivery failed", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
	return &Producer{w: w, log: log}
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w, log: zap.NewNop()}
}

func (p *Producer) Publish(ctx context.Context, ev model.CallEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal call event: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.CallID),
		Value: b,
		Time:  ev.OccurredAt,
	})
}

func (p *Producer) Close() error { return p.w.Close() }
