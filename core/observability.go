package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Metric names follow token_broker.<operation>.{total,duration_ms} for
// operations and token_broker.events.<event>.total for lifecycle events.
const (
	metricPrefix      = "token_broker."
	eventMetricPrefix = metricPrefix + "events."
)

// Only identity fields become metric tags; free-form context stays in logs
// to keep tag cardinality bounded.
var (
	operationTagKeys = []string{"principal_id", "resource_id", "batch_id", "token_type"}
	eventTagKeys     = []string{"principal_id", "resource_id"}
)

type logLevel int

const (
	levelInfo logLevel = iota
	levelDebug
	levelError
)

// observation is one finished operation, assembled once and then fanned
// out to the metrics recorder and the logger.
type observation struct {
	name    string
	elapsed time.Duration
	failed  bool
	fields  map[string]any
	tags    map[string]string
}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	obs := newObservation(operation, time.Since(startedAt), err, fields)

	s.recordCounter(ctx, metricPrefix+obs.name+".total", 1, obs.tags)
	s.recordHistogram(ctx, metricPrefix+obs.name+".duration_ms", float64(obs.elapsed.Milliseconds()), obs.tags)

	if obs.failed {
		s.logAt(ctx, levelError, obs.name+" failed", obs.fields)
		return
	}
	s.logAt(ctx, levelInfo, obs.name+" succeeded", obs.fields)
}

func newObservation(operation string, elapsed time.Duration, err error, fields map[string]any) observation {
	name := metricSegment(operation)
	if name == "" {
		name = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	logFields := cloneFields(fields)
	logFields["event_type"] = name
	logFields["status"] = status
	logFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		logFields["error"] = err.Error()
		enrichErrorFields(logFields, err)
	}

	tags := promoteTags(logFields, operationTagKeys)
	tags["operation"] = name
	tags["status"] = status

	return observation{
		name:    name,
		elapsed: elapsed,
		failed:  err != nil,
		fields:  logFields,
		tags:    tags,
	}
}

// emitEvent reports a lifecycle event (cache hit, refresh start/end,
// issuance failure) without the operation envelope. Sinks are optional;
// with no logger and no recorder configured this is a no-op.
func (s *Service) emitEvent(ctx context.Context, event string, fields map[string]any) {
	if s == nil {
		return
	}
	name := metricSegment(event)
	if name == "" {
		return
	}

	tags := promoteTags(fields, eventTagKeys)
	tags["event"] = name
	s.recordCounter(ctx, eventMetricPrefix+name+".total", 1, tags)

	logFields := cloneFields(fields)
	logFields["event_type"] = name
	s.logAt(ctx, levelDebug, name, logFields)
}

func promoteTags(fields map[string]any, keys []string) map[string]string {
	tags := make(map[string]string, len(keys)+2)
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if value := strings.TrimSpace(fmt.Sprint(raw)); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}
	return tags
}

func enrichErrorFields(fields map[string]any, err error) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return
	}
	if richErr.Category != "" {
		fields["error_category"] = string(richErr.Category)
	}
	if code := strings.TrimSpace(richErr.TextCode); code != "" {
		fields["error_text_code"] = code
	}
	var zeroSeverity goerrors.Severity
	if richErr.Severity != zeroSeverity {
		fields["error_severity"] = richErr.Severity.String()
	}
	if len(richErr.Metadata) > 0 {
		metadata := RedactSensitiveMap(richErr.Metadata)
		fields["error_metadata"] = metadata
		for _, key := range []string{"trace_id", "request_id"} {
			if value, ok := metadata[key]; ok {
				fields[key] = value
			}
		}
	}
}

func (s *Service) logAt(ctx context.Context, level logLevel, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case levelError:
		logger.Error(message, args...)
	case levelDebug:
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, name, value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, name, value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	copied := maps.Clone(fields)
	if copied == nil {
		copied = make(map[string]any, 4)
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func metricSegment(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, name)
}
