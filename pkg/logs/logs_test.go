package logs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Alijeyrad/clinicq_backend/config"
	"github.com/Alijeyrad/clinicq_backend/pkg/reqctx"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := reqctx.WithRequestMeta(context.Background(), &reqctx.RequestMeta{RequestID: "rid-9"})
	ctx = reqctx.WithTrace(ctx, &reqctx.TraceInfo{TraceID: "trace-1"})
	FromContext(ctx).Info("booked")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"rid-9"`) || !strings.Contains(out, `"trace_id":"trace-1"`) {
		t.Errorf("log line %s lacks request or trace id", out)
	}
}

func TestMultiHandler(t *testing.T) {
	var info, errOnly bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&errOnly, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	l := slog.New(h).With("service", "clinicq")

	l.Info("hello")
	l.Error("boom")

	if strings.Count(info.String(), "service=clinicq") != 2 {
		t.Errorf("info handler got %q", info.String())
	}
	if strings.Contains(errOnly.String(), "hello") || !strings.Contains(errOnly.String(), "boom") {
		t.Errorf("error handler got %q", errOnly.String())
	}
}

func TestLokiWriter(t *testing.T) {
	var got lokiPush
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode push: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Logging.Output.Loki.Endpoint = srv.URL
	cfg.Observability.ServiceName = "clinicq"
	cfg.Server.Environment = "test"

	line := `{"msg":"ticket \"A001\" booked"}` + "\n"
	n, err := newLokiWriter(cfg).Write([]byte(line))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(line) {
		t.Errorf("n = %d, want %d", n, len(line))
	}

	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["service"] != "clinicq" || s.Stream["env"] != "test" {
		t.Errorf("labels = %v", s.Stream)
	}
	if s.Values[0][1] != strings.TrimSuffix(line, "\n") {
		t.Errorf("line = %q", s.Values[0][1])
	}
}
