// Package telemetry is the cache's optional OpenTelemetry instrumentation,
// adapted from the teacher's internal/otel: there, a subscriber attaches
// spans to the teacher's HTTP/gRPC/GraphQL-server request lifecycle events;
// here, the same subscriber shape attaches spans to a Cache's write/read/
// populate lifecycle. It is entirely optional — a Cache built without
// telemetry.Setup publishes events to nobody and pays no tracing cost.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/otterscale/graphcache/internal/eventbus"
	"github.com/otterscale/graphcache/internal/events"
	"github.com/otterscale/graphcache/internal/reqid"
)

// Setup configures an OTLP/gRPC tracer provider and attaches a subscriber
// to bus that turns Write/Read/Populate lifecycle events into spans. If
// endpoint is empty, telemetry is disabled and Setup returns a no-op
// shutdown function.
func Setup(bus *eventbus.Bus, endpoint, service string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("graphcache")}
	sub.register(bus)

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer      trace.Tracer
	writeSpans  sync.Map // rid -> trace.Span
	readSpans   sync.Map // rid -> trace.Span
}

func (s *subscriber) register(bus *eventbus.Bus) {
	eventbus.Subscribe(bus, func(ctx context.Context, e events.WriteStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "graphcache.write")
		span.SetAttributes(
			attribute.String("graphcache.operation", e.Operation),
			attribute.String("graphcache.root_key", e.RootKey),
		)
		s.writeSpans.Store(rid, span)
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.WriteFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.writeSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("graphcache.dependency_count", len(e.Keys)),
			attribute.Int64("graphcache.duration_ns", e.Duration.Nanoseconds()),
		)
		span.End()
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.ReadStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "graphcache.read")
		span.SetAttributes(
			attribute.String("graphcache.operation", e.Operation),
			attribute.String("graphcache.root_key", e.RootKey),
		)
		s.readSpans.Store(rid, span)
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.ReadFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.readSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Bool("graphcache.partial", e.Partial),
			attribute.Int64("graphcache.duration_ns", e.Duration.Nanoseconds()),
		)
		span.End()
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.PopulateRewritten) {
		_, span := s.tracer.Start(ctx, "graphcache.populate")
		span.SetAttributes(
			attribute.String("graphcache.operation", e.Operation),
			attribute.Int("graphcache.fields_rewritten", e.FieldsRewritten),
		)
		span.End()
	})
}
