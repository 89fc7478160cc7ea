package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types published by the settlement engine
const (
	EventStakePlaced         = "stake.placed"
	EventPollClosed          = "poll.closed"
	EventPollResolved        = "poll.resolved"
	EventPollCancelled       = "poll.cancelled"
	EventPollDeleted         = "poll.deleted"
	EventDepositCompleted    = "deposit.completed"
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventWithdrawalFailed    = "withdrawal.failed"
)

// Event is a settlement notification. Key groups related events onto one partition.
type Event struct {
	Type       string                 `json:"type"`
	Key        string                 `json:"key"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Notifier publishes events without blocking the caller. Failures are logged, never returned.
type Notifier interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// LogNotifier writes events to the structured log
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Publish(_ context.Context, event Event) {
	n.log.Info("event published", slog.String("type", event.Type), slog.String("key", event.Key), slog.Any("data", event.Data))
}

func (n *LogNotifier) Close() error { return nil }

// KafkaNotifier publishes events to a Kafka topic
type KafkaNotifier struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewKafkaNotifier creates an asynchronous Kafka publisher
func NewKafkaNotifier(brokers []string, topic string, log *slog.Logger) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not provided in configuration")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic not provided in configuration")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { log.Error(fmt.Sprintf(msg, args...)) }),
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("failed to deliver events", slog.Int("count", len(messages)), slog.Any("error", err))
			}
		},
	}

	log.Info("Kafka notifier initialized", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &KafkaNotifier{writer: writer, log: log}, nil
}

func (n *KafkaNotifier) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		n.log.Error("failed to marshal event", slog.String("type", event.Type), slog.Any("error", err))
		return
	}

	message := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "timestamp", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}

	// Async writer: this only enqueues; delivery errors arrive through Completion.
	if err := n.writer.WriteMessages(context.WithoutCancel(ctx), message); err != nil {
		n.log.Error("failed to enqueue event", slog.String("type", event.Type), slog.Any("error", err))
	}
}

// Close flushes pending events and closes the writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
