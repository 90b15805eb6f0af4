package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	auditdomain "auth-session-service/internal/audit/domain"
	sessiondomain "auth-session-service/internal/session/domain"
)

// DecodeEvent parses one message written by KafkaProducer.
func DecodeEvent(payload []byte) (auditdomain.SecurityEvent, error) {
	var msg securityEventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return auditdomain.SecurityEvent{}, fmt.Errorf("decode security event: %w", err)
	}
	if msg.Kind == "" {
		return auditdomain.SecurityEvent{}, errors.New("decode security event: kind is required")
	}
	event := auditdomain.SecurityEvent{
		Kind:         auditdomain.EventKind(msg.Kind),
		Severity:     auditdomain.Severity(msg.Severity),
		SessionID:    msg.SessionID,
		UserID:       msg.UserID,
		IPChanged:    msg.IPChanged,
		AgentChanged: msg.AgentChanged,
		At:           msg.At,
	}
	if msg.Previous != nil {
		event.Previous = &sessiondomain.Fingerprint{UserAgent: msg.Previous.UserAgent, IP: msg.Previous.IP}
	}
	if msg.Current != nil {
		event.Current = &sessiondomain.Fingerprint{UserAgent: msg.Current.UserAgent, IP: msg.Current.IP}
	}
	return event, nil
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer reads security events from the topic as part of a consumer group.
type KafkaConsumer struct {
	reader messageReader
	logger *slog.Logger
}

// NewKafkaConsumer returns a consumer for topic in groupID. Offsets are committed every second.
func NewKafkaConsumer(brokers []string, topic, groupID string, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(brokers) == 0 || topic == "" || groupID == "" {
		return nil, errors.New("kafka consumer: brokers, topic and group id are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return &KafkaConsumer{reader: reader, logger: logger}, nil
}

// Consume calls handle for every decodable message until ctx is done, then returns nil.
// Undecodable messages and handler errors are logged and skipped.
func (c *KafkaConsumer) Consume(ctx context.Context, handle func(context.Context, auditdomain.SecurityEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.WarnContext(ctx, "kafka read failed", slog.Any("error", err))
			continue
		}
		event, err := DecodeEvent(msg.Value)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping malformed security event",
				slog.Int64("offset", msg.Offset), slog.Any("error", err))
			continue
		}
		if err := handle(ctx, event); err != nil {
			c.logger.ErrorContext(ctx, "security event handler failed",
				slog.String("kind", string(event.Kind)), slog.Any("error", err))
		}
	}
}

// Close closes the reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
