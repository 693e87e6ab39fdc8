// Package events publishes appointment change notifications to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/record"
)

// DefaultTopic receives every appointment event.
const DefaultTopic = "appointments.events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Payload is the JSON body of a published message.
type Payload struct {
	EventID       string              `json:"event_id"`
	Type          string              `json:"type"`
	AppointmentID string              `json:"appointment_id"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Appointment   *record.Appointment `json:"appointment,omitempty"`
}

// KafkaPublisher implements application.EventPublisher on a kafka-go writer.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	logger  *slog.Logger
	timeout time.Duration
	newID   func() string
}

// PublisherConfig configures NewKafkaPublisher.
type PublisherConfig struct {
	Brokers string
	Topic   string
	Timeout time.Duration
}

// NewKafkaPublisher builds a publisher for the comma separated broker list.
func NewKafkaPublisher(cfg PublisherConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	brokers := SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("events: no kafka brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(writer, cfg.Topic, cfg.Timeout, logger), nil
}

func newKafkaPublisher(writer messageWriter, topic string, timeout time.Duration, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		logger:  logger.With("component", "events"),
		timeout: timeout,
		newID:   uuid.NewString,
	}
}

// Publish writes one message keyed by appointment id so that events for the
// same appointment keep their order.
func (p *KafkaPublisher) Publish(ctx context.Context, event application.Event) error {
	payload := Payload{
		EventID:       p.newID(),
		Type:          string(event.Type),
		AppointmentID: event.AppointmentID,
		OccurredAt:    event.OccurredAt.UTC(),
		Appointment:   event.Appointment,
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AppointmentID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(payload.EventID)},
			{Key: "event_type", Value: []byte(payload.Type)},
			{Key: "appointment_id", Value: []byte(event.AppointmentID)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("events: write %s to %s: %w", event.Type, p.topic, err)
	}
	p.logger.DebugContext(ctx, "event published", "event_type", payload.Type, "appointment_id", event.AppointmentID)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// SplitBrokers parses a comma separated broker list, dropping blanks.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// HeaderValue returns the first header named key.
func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// InjectTraceHeaders appends W3C trace context headers to Kafka headers.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

// ExtractTraceContext returns ctx enriched with the trace context carried by msg.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{headers: msg.Headers})
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(c.headers, key)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}
