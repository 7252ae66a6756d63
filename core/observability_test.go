package core

import (
	"context"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type counterSample struct {
	name  string
	value int64
	tags  map[string]string
}

type histogramSample struct {
	name  string
	value float64
	tags  map[string]string
}

type metricsProbe struct {
	mu         sync.Mutex
	counters   []counterSample
	histograms []histogramSample
}

func (m *metricsProbe) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, counterSample{name: name, value: value, tags: cloneTags(tags)})
}

func (m *metricsProbe) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, histogramSample{name: name, value: value, tags: cloneTags(tags)})
}

func (m *metricsProbe) counterSnapshot() []counterSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.counters)
}

func (m *metricsProbe) histogramSnapshot() []histogramSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.histograms)
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

type logSink struct {
	mu      sync.Mutex
	entries []logEntry
}

// loggerProbe records every emitted line into a sink shared across the
// derived loggers WithFields and WithContext hand back.
type loggerProbe struct {
	sink     *logSink
	defaults map[string]any
}

func newLoggerProbe() *loggerProbe {
	return &loggerProbe{sink: &logSink{}, defaults: map[string]any{}}
}

func (l *loggerProbe) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	maps.Copy(merged, fields)
	return &loggerProbe{sink: l.sink, defaults: merged}
}

func (l *loggerProbe) WithContext(context.Context) Logger {
	return &loggerProbe{sink: l.sink, defaults: cloneFields(l.defaults)}
}

func (l *loggerProbe) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *loggerProbe) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *loggerProbe) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *loggerProbe) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *loggerProbe) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *loggerProbe) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *loggerProbe) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *loggerProbe) snapshot() []logEntry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return slices.Clone(l.sink.entries)
}

func TestBrokerObservability_ResolveSuccess(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	inner := NewMemoryCredentialStore()
	if err := inner.Save(ctx, testRecord("p1", base.Add(time.Hour))); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	metrics := &metricsProbe{}
	logger := newLoggerProbe()
	svc, err := NewService(DefaultConfig(),
		WithCredentialStore(inner),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
		WithNowFunc(fixedClock(base)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.ResolveAccessToken(ctx, "p1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if !hasCounter(metrics.counterSnapshot(), "token_broker.resolve_access_token.total", "success") {
		t.Fatalf("expected resolve success counter")
	}
	if !hasHistogram(metrics.histogramSnapshot(), "token_broker.resolve_access_token.duration_ms", "success") {
		t.Fatalf("expected resolve duration histogram")
	}
	if !hasLog(logger.snapshot(), "info", "resolve_access_token succeeded", "resolve_access_token") {
		t.Fatalf("expected resolve succeeded structured log")
	}
	if !hasEventCounter(metrics.counterSnapshot(), "token_broker.events.cache_hit.total") {
		t.Fatalf("expected cache hit event counter")
	}
}

func TestBrokerObservability_OperationFailure(t *testing.T) {
	ctx := context.Background()
	metrics := &metricsProbe{}
	logger := newLoggerProbe()
	svc, err := NewService(DefaultConfig(),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
		WithResourceClient(&stubResourceClient{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.JoinSession(ctx, "p1", ""); err == nil {
		t.Fatalf("expected join session failure")
	}
	if !hasCounter(metrics.counterSnapshot(), "token_broker.join_session.total", "failure") {
		t.Fatalf("expected join session failure counter")
	}
	if !hasLog(logger.snapshot(), "error", "join_session failed", "join_session") {
		t.Fatalf("expected join session failure log")
	}
}

func TestBrokerObservability_RefreshLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	inner := NewMemoryCredentialStore()
	if err := inner.Save(ctx, testRecord("p1", base.Add(time.Minute))); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	metrics := &metricsProbe{}
	svc, err := NewService(DefaultConfig(),
		WithCredentialStore(inner),
		WithAuthorityClient(&stubAuthorityClient{
			refreshGrant: TokenGrant{AccessToken: "bearer-rotated", ExpiresIn: 3600},
		}),
		WithMetricsRecorder(metrics),
		WithNowFunc(fixedClock(base)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.ResolveAccessToken(ctx, "p1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	counters := metrics.counterSnapshot()
	if !hasEventCounter(counters, "token_broker.events.refresh_started.total") {
		t.Fatalf("expected refresh started event")
	}
	if !hasEventCounter(counters, "token_broker.events.refresh_completed.total") {
		t.Fatalf("expected refresh completed event")
	}
}

func TestBrokerObservability_EnrichesStructuredErrorFields(t *testing.T) {
	metrics := &metricsProbe{}
	logger := newLoggerProbe()
	svc, err := NewService(DefaultConfig(),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	richErr := goerrors.New("authority timeout", goerrors.CategoryExternal).
		WithCode(502).
		WithTextCode(BrokerErrorUpstreamUnavailable).
		WithSeverity(goerrors.SeverityCritical).
		WithMetadata(map[string]any{
			"trace_id":      "trace_123",
			"request_id":    "req_123",
			"refresh_token": "secret_refresh_token",
		})
	svc.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"refresh_credential",
		richErr,
		map[string]any{"principal_id": "p1"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.fields["error_category"] != "external" {
		t.Fatalf("expected error_category external, got %#v", last.fields["error_category"])
	}
	if last.fields["error_text_code"] != BrokerErrorUpstreamUnavailable {
		t.Fatalf("expected error_text_code %q, got %#v", BrokerErrorUpstreamUnavailable, last.fields["error_text_code"])
	}
	if last.fields["error_severity"] != goerrors.SeverityCritical.String() {
		t.Fatalf("expected critical severity, got %#v", last.fields["error_severity"])
	}
	if last.fields["request_id"] != "req_123" {
		t.Fatalf("expected request_id propagation, got %#v", last.fields["request_id"])
	}
	if last.fields["trace_id"] != "trace_123" {
		t.Fatalf("expected trace_id propagation, got %#v", last.fields["trace_id"])
	}

	metadata, ok := last.fields["error_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected redacted error_metadata map, got %#v", last.fields["error_metadata"])
	}
	if metadata["refresh_token"] != RedactedValue {
		t.Fatalf("expected refresh_token to be redacted, got %#v", metadata["refresh_token"])
	}
}

func hasCounter(samples []counterSample, name string, status string) bool {
	for _, sample := range samples {
		if sample.name == name && sample.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasEventCounter(samples []counterSample, name string) bool {
	return slices.ContainsFunc(samples, func(sample counterSample) bool {
		return sample.name == name
	})
}

func hasHistogram(samples []histogramSample, name string, status string) bool {
	for _, sample := range samples {
		if sample.name == name && sample.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(entries []logEntry, level string, message string, eventType string) bool {
	for _, entry := range entries {
		if entry.level == level && entry.msg == message && entry.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}
