package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Alijeyrad/clinicq_backend/config"
	"github.com/Alijeyrad/clinicq_backend/pkg/reqctx"
)

func TestFromCentralConfig(t *testing.T) {
	c := &config.Config{}
	c.Observability.ServiceName = "clinicq"
	c.Observability.Tracing.Enabled = true
	c.Observability.Tracing.SamplingRate = 0.25
	c.Server.Environment = "staging"

	got := FromCentralConfig(c)
	if got.ServiceName != "clinicq" || got.Environment != "staging" || !got.TracingEnabled || got.SamplingRate != 0.25 {
		t.Errorf("FromCentralConfig() = %+v", got)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(Config{}).Description(); got != trace.NeverSample().Description() {
		t.Errorf("disabled tracing sampler = %s", got)
	}
	if got := sampler(Config{TracingEnabled: true, SamplingRate: 5}).Description(); got != trace.ParentBased(trace.TraceIDRatioBased(1)).Description() {
		t.Errorf("out of range rate sampler = %s", got)
	}
}

func TestFiberMiddleware_PropagatesTrace(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	app := fiber.New()
	app.Use(FiberMiddleware("clinicq"))
	app.Get("/tickets/:id", func(c fiber.Ctx) error {
		return c.SendString(reqctx.TraceIDFromContext(c.Context()))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/tickets/42", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	traceID := resp.Header.Get("X-Trace-Id")
	if traceID == "" {
		t.Fatal("missing X-Trace-Id header")
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != traceID {
		t.Errorf("request context trace id = %q, want %q", body, traceID)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != traceID {
		t.Errorf("span trace id = %s, header = %s", got, traceID)
	}
}
