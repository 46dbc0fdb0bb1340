// Package metrics records negotiation session metrics.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

const (
	serviceName    = "negotiator"
	serviceVersion = "1.0.0"
)

// Recorder receives fold outcomes from the session controller.
type Recorder interface {
	EventFolded(ctx context.Context, mode string, eventType protocol.EventType)
	EventRejected(ctx context.Context, mode string, eventType protocol.EventType, reason string)
	SessionEnded(ctx context.Context, mode string, status string, rounds int)
	Close(ctx context.Context) error
}

// Config holds OTLP exporter configuration.
type Config struct {
	Endpoint string
	Insecure bool
}

// Exporter records metrics through an OpenTelemetry meter provider.
type Exporter struct {
	provider      *sdkmetric.MeterProvider
	eventsTotal   metric.Int64Counter
	rejectedTotal metric.Int64Counter
	sessionsTotal metric.Int64Counter
	sessionRounds metric.Int64Histogram
}

// New returns an OTLP exporter when an endpoint is configured, and NoOp otherwise.
func New(ctx context.Context, cfg Config) (Recorder, error) {
	if cfg.Endpoint == "" {
		return NewNoOp(), nil
	}
	exporter, err := NewExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return exporter, nil
}

// NewExporter creates an exporter pushing to an OTel collector over gRPC.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	exporter, err := NewWithReader(sdkmetric.NewPeriodicReader(exp))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(exporter.provider)
	return exporter, nil
}

// NewWithReader creates an exporter collected by reader.
func NewWithReader(reader sdkmetric.Reader) (*Exporter, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", serviceVersion),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(serviceName)

	eventsTotal, err := meter.Int64Counter(
		"negotiator_events_folded_total",
		metric.WithDescription("Events folded into session view state"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events counter: %w", err)
	}

	rejectedTotal, err := meter.Int64Counter(
		"negotiator_events_rejected_total",
		metric.WithDescription("Events the projector refused"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	sessionsTotal, err := meter.Int64Counter(
		"negotiator_sessions_total",
		metric.WithDescription("Sessions that reached their end event"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	sessionRounds, err := meter.Int64Histogram(
		"negotiator_session_rounds",
		metric.WithDescription("Rounds per finished session"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rounds histogram: %w", err)
	}

	return &Exporter{
		provider:      provider,
		eventsTotal:   eventsTotal,
		rejectedTotal: rejectedTotal,
		sessionsTotal: sessionsTotal,
		sessionRounds: sessionRounds,
	}, nil
}

func (e *Exporter) EventFolded(ctx context.Context, mode string, eventType protocol.EventType) {
	e.eventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("event_type", string(eventType)),
	))
}

func (e *Exporter) EventRejected(ctx context.Context, mode string, eventType protocol.EventType, reason string) {
	e.rejectedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("event_type", string(eventType)),
		attribute.String("reason", reason),
	))
}

func (e *Exporter) SessionEnded(ctx context.Context, mode string, status string, rounds int) {
	opt := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	e.sessionsTotal.Add(ctx, 1, opt)
	e.sessionRounds.Record(ctx, int64(rounds), opt)
}

// Close shuts down the provider and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

// NoOp is a recorder that does nothing.
type NoOp struct{}

// NewNoOp creates a recorder for runs without a collector.
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (NoOp) EventFolded(context.Context, string, protocol.EventType)           {}
func (NoOp) EventRejected(context.Context, string, protocol.EventType, string) {}
func (NoOp) SessionEnded(context.Context, string, string, int)                 {}
func (NoOp) Close(context.Context) error                                       { return nil }
