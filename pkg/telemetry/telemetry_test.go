package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/hostsync/pkg/engine"
)

func testReport() *engine.ExecutionReport {
	return &engine.ExecutionReport{Results: []engine.OperationResult{
		{Operation: engine.Operation{Verb: engine.VerbInstall, Target: "htop", Subsystem: "package"}, Success: true},
		{Operation: engine.Operation{Verb: engine.VerbEnable, Target: "sshd.service", Subsystem: "service"}, Message: "exit status 1"},
	}}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"empty buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
		{"bad event level", func(c *Config) { c.Events.MinLevel = "fatal" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriterLogger(&buf, LoggingConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("NewWriterLogger failed: %v", err)
	}

	logger.NewComponentLogger("cli").WithSubsystem("flatpak").Info("planned")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %q", buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "cli" || entry["subsystem"] != "flatpak" || entry["message"] != "planned" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected a default logger")
	}

	logger, err := NewWriterLogger(&bytes.Buffer{}, LoggingConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("NewWriterLogger failed: %v", err)
	}
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.RecordRun("apply", testReport(), time.Second)
	m.RecordError(errors.New("boom"))
	if m.Enabled() || m.Gatherer() != nil {
		t.Error("expected disabled metrics")
	}
	if err := m.WriteTextfile(); err != nil {
		t.Errorf("WriteTextfile on disabled metrics: %v", err)
	}
}

func TestMetrics_RecordRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "hostsync.prom")
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "hostsync", TextfilePath: path})

	m.RecordRun("apply", testReport(), 2*time.Second)
	m.SetDrift("flatpak", engine.ComponentStatus{Name: "Flatpak", Synced: 3, Pending: 1})
	m.RecordError(engine.NewPlanningError("scan failed", nil).WithCode(engine.ErrCodeScanFailed))

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("apply", "partial")); got != 1 {
		t.Errorf("expected 1 partial run, got %v", got)
	}
	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("service", "enable", "failure")); got != 1 {
		t.Errorf("expected 1 failed enable, got %v", got)
	}
	if got := testutil.ToFloat64(m.driftItems.WithLabelValues("flatpak", "pending")); got != 1 {
		t.Errorf("expected 1 pending item, got %v", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("planning", engine.ErrCodeScanFailed)); got != 1 {
		t.Errorf("expected 1 planning error, got %v", got)
	}

	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), "hostsync_runs_total") {
		t.Errorf("expected runs metric in textfile, got:\n%s", data)
	}
}

func TestEventPublisher_OrderAndShutdown(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{BufferSize: 4})

	var (
		mu       sync.Mutex
		received []string
		failures int
	)
	ep.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e.Message)
	}, nil)
	ep.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		failures++
	}, FilterByLevel(EventLevelError))

	for i, res := range testReport().Results {
		p := engine.OperationProgress{Index: i + 1, Total: 2, Operation: res.Operation, Success: res.Success, Message: res.Message}
		if err := ep.PublishProgress("run-1", p); err != nil {
			t.Fatalf("PublishProgress failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"install htop", "enable sshd.service: exit status 1"}
	if strings.Join(received, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, received)
	}
	if failures != 1 {
		t.Errorf("expected 1 failure event, got %d", failures)
	}

	if err := ep.Publish(Event{Message: "late"}); err == nil {
		t.Error("expected error publishing after shutdown")
	}
	if err := ep.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
}

func TestEventPublisher_PublishDuringShutdown(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{BufferSize: 1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := ep.Publish(Event{Message: "tick"}); err != nil {
					if !errors.Is(err, ErrPublisherStopped) {
						t.Errorf("unexpected error %v", err)
					}
					return
				}
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	wg.Wait()

	if err := ep.Publish(Event{Message: "late"}); !errors.Is(err, ErrPublisherStopped) {
		t.Errorf("expected ErrPublisherStopped, got %v", err)
	}
}

func TestNewTelemetry_EventLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriterLogger(&buf, LoggingConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("NewWriterLogger failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Events.MinLevel = EventLevelError
	tel, err := NewTelemetryWithLogger(cfg, logger)
	if err != nil {
		t.Fatalf("NewTelemetryWithLogger failed: %v", err)
	}

	_ = tel.Events.Publish(Event{Message: "quiet progress", Level: EventLevelInfo})
	_ = tel.Events.Publish(Event{Message: "install failed", Level: EventLevelError})
	if err := tel.Events.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "quiet progress") {
		t.Errorf("expected info event to be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "install failed") {
		t.Errorf("expected error event in log, got:\n%s", out)
	}
}

func TestFilterByLevel(t *testing.T) {
	f := FilterByLevel(EventLevelWarning)
	if f(Event{Level: EventLevelInfo}) || !f(Event{Level: EventLevelWarning}) || !f(Event{Level: EventLevelError}) {
		t.Error("unexpected filter result")
	}
}

func TestFilterByType(t *testing.T) {
	f := FilterByType(EventTypeRunStarted)
	if !f(Event{Type: EventTypeRunStarted}) || f(Event{Type: EventTypeRunCompleted}) {
		t.Error("unexpected filter result")
	}
}

func TestObserveRun(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	logger, err := NewWriterLogger(&bytes.Buffer{}, LoggingConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("NewWriterLogger failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	tel, err := NewTelemetryWithLogger(cfg, logger)
	if err != nil {
		t.Fatalf("NewTelemetryWithLogger failed: %v", err)
	}
	tel.Tracer = NewTracerWithExporter(exporter, "hostsync-test")

	var events []string
	var mu sync.Mutex
	tel.Events.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	}, nil)

	report := testReport()
	summary := engine.NewPlanSummary("Test", []engine.Operation{report.Results[0].Operation, report.Results[1].Operation}, nil)

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Fatal("expected telemetry in context")
	}

	_, obs := tel.ObserveRun(ctx, "run-1", "apply", summary)
	for i, res := range report.Results {
		obs.Progress(engine.OperationProgress{Index: i + 1, Total: 2, Operation: res.Operation, Success: res.Success, Message: res.Message})
	}
	obs.Finish(report, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "hostsync.execute" || len(spans[0].Events) != 2 {
		t.Errorf("unexpected span %s with %d events", spans[0].Name, len(spans[0].Events))
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{EventTypeRunStarted, EventTypeOperationCompleted, EventTypeOperationFailed, EventTypeRunCompleted}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, events)
	}
	if got := testutil.ToFloat64(tel.Metrics.runsTotal.WithLabelValues("apply", "partial")); got != 1 {
		t.Errorf("expected 1 recorded run, got %v", got)
	}
}
