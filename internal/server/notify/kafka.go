// Package notify delivers password-reset links to the mail pipeline. The
// Kafka producer publishes an event consumed by the mail service; when no
// broker is configured a logging no-op sink is used instead.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// PasswordResetEvent is the message published for each reset request.
type PasswordResetEvent struct {
	Email     string `json:"email"`
	ResetLink string `json:"reset_link"`
}

// writer is the subset of kafka.Writer used here, extracted for tests.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes reset events to a Kafka topic.
type KafkaNotifier struct {
	writer writer
}

// NewKafkaNotifier constructs a producer for the given broker and topic.
func NewKafkaNotifier(broker, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// PasswordResetRequested publishes the reset event, keyed by email so
// retries for one address stay ordered.
func (n *KafkaNotifier) PasswordResetRequested(ctx context.Context, email, resetLink string) error {
	value, err := json.Marshal(PasswordResetEvent{Email: email, ResetLink: resetLink})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(email),
		Value: value,
		Time:  time.Now(),
	})
}

// NopNotifier logs the reset link instead of delivering it. Used in
// development and when no broker is configured.
type NopNotifier struct {
	logger logging.Logger
}

// NewNopNotifier constructs a NopNotifier.
func NewNopNotifier(logger logging.Logger) *NopNotifier {
	return &NopNotifier{logger: logger.With("module", "notify")}
}

// PasswordResetRequested logs the event and reports success.
func (n *NopNotifier) PasswordResetRequested(ctx context.Context, email, resetLink string) error {
	n.logger.Info(ctx, "password reset requested", "email", email)
	return nil
}
