package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestTelemetry(t *testing.T, buf *bytes.Buffer) *Telemetry {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "debug"

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		t.Fatalf("Failed to create tracer: %v", err)
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	return &Telemetry{
		Logger:  NewLoggerWithWriter(cfg.Logging, buf),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "production", mutate: func(c *Config) { *c = *ProductionConfig() }},
		{name: "empty service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
		{name: "bad sampling rate", mutate: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig().Logging
	cfg.Format = "json"

	logger := NewLoggerWithWriter(cfg, &buf).
		NewComponentLogger("results").
		WithSample("genome-A").
		WithPropertyID("GenProp0065")
	logger.Info("assigned")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}

	want := map[string]string{
		"component":   "results",
		"sample":      "genome-A",
		"property_id": "GenProp0065",
		"message":     "assigned",
		"level":       "info",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("Expected %s=%q, got %v", k, v, entry[k])
		}
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig().Logging
	cfg.Format = "json"
	cfg.Level = "warn"

	logger := NewLoggerWithWriter(cfg, &buf)
	logger.Info("hidden")
	logger.Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Expected no output below warn, got %q", buf.String())
	}

	logger.Warnf("visible %d", 2)
	if !strings.Contains(buf.String(), "visible 2") {
		t.Errorf("Expected warn output, got %q", buf.String())
	}
}

func TestFromContext_NoLogger(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected a no-op logger, got nil")
	}
	// Must not panic.
	logger.Info("discarded")
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordSampleStarted()
	m.RecordSampleAssigned("success", time.Second)
	m.RecordFlushed(3)
	m.RecordPropertyResult("YES")
	m.RecordError("permanent", "CYCLE_DETECTED")

	if m.Registry() != nil {
		t.Error("Expected nil registry for disabled metrics")
	}
	if err := m.StartMetricsServer(); err != nil {
		t.Errorf("Expected disabled server start to be a no-op, got %v", err)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordStepResult("NO")
}

func TestMetrics_Record(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordPropertyResult("YES")
	m.RecordPropertyResult("YES")
	m.RecordPropertyResult("NO")
	m.RecordStepResult("PARTIAL")
	m.RecordFlushed(4)
	m.RecordError("permanent", "CYCLE_DETECTED")
	m.RecordError("permanent", "")

	if got := testutil.ToFloat64(m.propertyResults.WithLabelValues("YES")); got != 2 {
		t.Errorf("Expected 2 YES property results, got %v", got)
	}
	if got := testutil.ToFloat64(m.propertyResults.WithLabelValues("NO")); got != 1 {
		t.Errorf("Expected 1 NO property result, got %v", got)
	}
	if got := testutil.ToFloat64(m.stepResults.WithLabelValues("PARTIAL")); got != 1 {
		t.Errorf("Expected 1 PARTIAL step result, got %v", got)
	}
	if got := testutil.ToFloat64(m.entriesFlushed); got != 4 {
		t.Errorf("Expected 4 flushed identifiers, got %v", got)
	}
	if got := testutil.ToFloat64(m.errorsByClass.WithLabelValues("permanent")); got != 2 {
		t.Errorf("Expected 2 permanent errors, got %v", got)
	}
	if got := testutil.ToFloat64(m.errorsByCode.WithLabelValues("CYCLE_DETECTED")); got != 1 {
		t.Errorf("Expected 1 CYCLE_DETECTED error, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordBuildCompleted("success", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "genprop_builds_completed_total") {
		t.Errorf("Expected builds counter in output, got:\n%s", rec.Body.String())
	}
}

func TestSampleContext(t *testing.T) {
	var buf bytes.Buffer
	tel := newTestTelemetry(t, &buf)
	ctx := tel.WithContext(context.Background())

	sctx := WithSampleContext(ctx, "genome-A")
	FromContext(sctx).Info("bootstrapping")
	if got := testutil.ToFloat64(tel.Metrics.activeSamples); got != 1 {
		t.Errorf("Expected 1 active sample, got %v", got)
	}

	EndSampleContext(sctx, 2, nil)

	if !strings.Contains(buf.String(), `"sample":"genome-A"`) {
		t.Errorf("Expected sample field in log, got %q", buf.String())
	}
	if got := testutil.ToFloat64(tel.Metrics.activeSamples); got != 0 {
		t.Errorf("Expected 0 active samples, got %v", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.samplesAssigned.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful sample, got %v", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.entriesFlushed); got != 2 {
		t.Errorf("Expected 2 flushed identifiers, got %v", got)
	}

	fctx := WithSampleContext(ctx, "genome-B")
	EndSampleContext(fctx, 0, errors.New("boom"))
	if got := testutil.ToFloat64(tel.Metrics.samplesAssigned.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed sample, got %v", got)
	}
}

func TestSampleContext_NoTelemetry(t *testing.T) {
	ctx := context.Background()
	if got := WithSampleContext(ctx, "genome-A"); got != ctx {
		t.Error("Expected context to be returned unchanged without telemetry")
	}
	EndSampleContext(ctx, 1, nil)

	op := StartOperation(ctx, "results.build")
	if op.Span != nil {
		t.Error("Expected no span without telemetry")
	}
	op.End(errors.New("ignored"))
}
