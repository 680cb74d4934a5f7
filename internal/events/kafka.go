package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"WalletLedger/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka writes order events to one topic, keyed by app so a tenant's events stay ordered.
type Kafka struct {
	Writer *kafka.Writer
}

func NewKafka(brokers []string, topic string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{Writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}}
}

func (k *Kafka) Publish(ctx context.Context, ev models.OrderEvent) error {
	return k.PublishBatch(ctx, []models.OrderEvent{ev})
}

// PublishBatch writes evs synchronously. An error means none of them can be assumed delivered.
func (k *Kafka) PublishBatch(ctx context.Context, evs []models.OrderEvent) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		data, err := Encode(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.EventID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(ev.AppID, 10)),
			Value: data,
			Time:  ev.CreatedAt,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(ev.Type)},
				{Key: "order_id", Value: []byte(ev.OrderID.String())},
			},
		})
	}
	return k.Writer.WriteMessages(ctx, msgs...)
}

func (k *Kafka) Close() error {
	return k.Writer.Close()
}
