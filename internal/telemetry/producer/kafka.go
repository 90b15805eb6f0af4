package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	auditdomain "auth-session-service/internal/audit/domain"
)

const writeTimeout = 5 * time.Second

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaProducer creates a Kafka producer that writes security events to the given topic.
// Returns nil, nil when brokers or topic are empty so callers can skip the sink. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, topic: topic}, nil
}

// securityEventMessage is the JSON wire format on the topic.
type securityEventMessage struct {
	Kind         string          `json:"kind"`
	Severity     string          `json:"severity"`
	SessionID    string          `json:"session_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	Previous     *fingerprintMsg `json:"previous,omitempty"`
	Current      *fingerprintMsg `json:"current,omitempty"`
	IPChanged    bool            `json:"ip_changed,omitempty"`
	AgentChanged bool            `json:"agent_changed,omitempty"`
	At           time.Time       `json:"at"`
}

type fingerprintMsg struct {
	UserAgent string `json:"user_agent"`
	IP        string `json:"ip"`
}

func encodeEvent(event auditdomain.SecurityEvent) ([]byte, error) {
	msg := securityEventMessage{
		Kind:         string(event.Kind),
		Severity:     string(event.Severity),
		SessionID:    event.SessionID,
		UserID:       event.UserID,
		IPChanged:    event.IPChanged,
		AgentChanged: event.AgentChanged,
		At:           event.At.UTC(),
	}
	if msg.Severity == "" {
		msg.Severity = string(event.DefaultSeverity())
	}
	if event.Previous != nil {
		msg.Previous = &fingerprintMsg{UserAgent: event.Previous.UserAgent, IP: event.Previous.IP}
	}
	if event.Current != nil {
		msg.Current = &fingerprintMsg{UserAgent: event.Current.UserAgent, IP: event.Current.IP}
	}
	return json.Marshal(msg)
}

// Emit serializes the event as JSON and writes it to the Kafka topic, keyed by user id so a
// user's events stay ordered within a partition.
func (p *KafkaProducer) Emit(ctx context.Context, event auditdomain.SecurityEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	var key []byte
	if event.UserID != "" {
		key = []byte(event.UserID)
	}
	return p.writer.WriteMessages(writeCtx, kafka.Message{Key: key, Value: payload})
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
