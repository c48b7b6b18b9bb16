package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/pkg/models"
)

// KafkaWriter abstracts the output stream
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReader abstracts the input stream
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

var (
	_ Publisher  = (*KafkaBus)(nil)
	_ Subscriber = (*KafkaBus)(nil)
)

// KafkaBus publishes events to a topic and consumes them in a consumer group.
// Either side may be nil when a process only needs one direction.
type KafkaBus struct {
	writer KafkaWriter
	reader KafkaReader
	logger *zap.Logger
}

func NewKafkaBus(writer KafkaWriter, reader KafkaReader, logger *zap.Logger) *KafkaBus {
	return &KafkaBus{writer: writer, reader: reader, logger: logger}
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          1,
		MaxBytes:          10e6,
		MaxWait:           200 * time.Millisecond,
		CommitInterval:    time.Second,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})
}

// Publish keys messages by group (or event name) so one group stays ordered
// within a partition.
func (k *KafkaBus) Publish(ctx context.Context, ev models.Event) error {
	if k.writer == nil {
		return ErrClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := ev.Group
	if key == "" {
		key = ev.Name
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaBus) Run(ctx context.Context, handler func(models.Event)) error {
	if k.reader == nil {
		return ErrClosed
	}

	k.logger.Info("Kafka Consumer Started")
	for {
		m, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			k.logger.Error("Kafka Read Error", zap.Error(err))
			continue
		}

		var ev models.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			k.logger.Error("JSON Unmarshal Error", zap.Error(err), zap.String("key", string(m.Key)))
			continue
		}
		handler(ev)
	}
}

func (k *KafkaBus) Close() error {
	var errs []error
	if k.writer != nil {
		errs = append(errs, k.writer.Close())
	}
	if k.reader != nil {
		errs = append(errs, k.reader.Close())
	}
	return errors.Join(errs...)
}
