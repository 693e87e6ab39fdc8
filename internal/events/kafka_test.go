package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/record"
)

type writerStub struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *writerStub) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *writerStub) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(w *writerStub) *KafkaPublisher {
	p := newKafkaPublisher(w, DefaultTopic, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.newID = func() string { return "evt-1" }
	return p
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &writerStub{}
	publisher := newTestPublisher(writer)
	occurred := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	appointment := record.Appointment{ID: "apt-1", SubjectName: "Jane", Date: "2025-03-11", Time: "09:00", Reason: "checkup"}

	err := publisher.Publish(context.Background(), application.Event{
		Type:          application.EventCreated,
		AppointmentID: "apt-1",
		Appointment:   &appointment,
		OccurredAt:    occurred,
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}

	msg := writer.messages[0]
	if string(msg.Key) != "apt-1" {
		t.Errorf("expected key apt-1, got %q", msg.Key)
	}
	if got := HeaderValue(msg.Headers, "event_type"); got != "appointment.created" {
		t.Errorf("expected event_type header, got %q", got)
	}
	if got := HeaderValue(msg.Headers, "event_id"); got != "evt-1" {
		t.Errorf("expected event_id header, got %q", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["appointment_id"] != "apt-1" || payload["type"] != "appointment.created" {
		t.Errorf("unexpected payload %v", payload)
	}
	nested, ok := payload["appointment"].(map[string]any)
	if !ok || nested["subjectName"] != "Jane" {
		t.Errorf("expected nested appointment with subjectName, got %v", payload["appointment"])
	}
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	writer := &writerStub{err: errors.New("broker down")}
	err := newTestPublisher(writer).Publish(context.Background(), application.Event{Type: application.EventDeleted, AppointmentID: "apt-2"})
	if err == nil {
		t.Fatalf("expected write error")
	}
}

func TestKafkaPublisher_PropagatesTraceContext(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	writer := &writerStub{}
	if err := newTestPublisher(writer).Publish(ctx, application.Event{Type: application.EventCompleted, AppointmentID: "apt-3"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if HeaderValue(writer.messages[0].Headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header")
	}
	extracted := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), writer.messages[0]))
	if extracted.TraceID() != traceID {
		t.Fatalf("expected trace id %s, got %s", traceID, extracted.TraceID())
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	writer := &writerStub{}
	if err := newTestPublisher(writer).Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed, err=%v", err)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092,")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if _, err := NewKafkaPublisher(PublisherConfig{Brokers: " , "}, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
