package zapobs

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chapterflow/observability"
)

func newObservedObserver(t *testing.T) (*Observer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return New(WithLogger(zap.New(core))), logs
}

func entriesWithMessage(logs *observer.ObservedLogs, message string) []observer.LoggedEntry {
	var matched []observer.LoggedEntry
	for _, entry := range logs.All() {
		if entry.Message == message {
			matched = append(matched, entry)
		}
	}
	return matched
}

func TestSpanLifecycleLogsStartAndEnd(t *testing.T) {
	obs, logs := newObservedObserver(t)

	_, span := obs.StartSpan(context.Background(), "create_folder_dao",
		observability.String("pipeline.node.id", "create_folder_dao"),
	)
	span.SetAttributes(observability.Int("documents", 3))
	span.SetStatus(observability.StatusOK, "stage completed")
	span.End()

	if started := entriesWithMessage(logs, "span started"); len(started) != 1 {
		t.Fatalf("expected one span start entry, got %d", len(started))
	}

	ended := entriesWithMessage(logs, "span ended")
	if len(ended) != 1 {
		t.Fatalf("expected one span end entry, got %d", len(ended))
	}

	fields := ended[0].ContextMap()
	if fields["span"] != "create_folder_dao" {
		t.Errorf("unexpected span name: %v", fields["span"])
	}
	if fields["documents"] != int64(3) && fields["documents"] != 3 {
		t.Errorf("attribute set after start missing from end entry: %v", fields)
	}
	if fields[observability.AttrStatus] != "ok" {
		t.Errorf("status not recorded: %v", fields)
	}
}

func TestRecordErrorLogsAndAnnotatesSpan(t *testing.T) {
	obs, logs := newObservedObserver(t)

	_, span := obs.StartSpan(context.Background(), "summarize_chapter")
	span.RecordError(errors.New("model unavailable"))
	span.End()

	if errorEntries := entriesWithMessage(logs, "span error"); len(errorEntries) != 1 {
		t.Fatalf("expected one span error entry, got %d", len(errorEntries))
	}

	ended := entriesWithMessage(logs, "span ended")
	if len(ended) != 1 {
		t.Fatalf("expected one span end entry, got %d", len(ended))
	}
	if ended[0].ContextMap()[observability.AttrError] != "model unavailable" {
		t.Errorf("error attribute missing from end entry: %v", ended[0].ContextMap())
	}
}

func TestRecordErrorIgnoresNil(t *testing.T) {
	obs, logs := newObservedObserver(t)

	_, span := obs.StartSpan(context.Background(), "stage")
	span.RecordError(nil)
	span.End()

	if errorEntries := entriesWithMessage(logs, "span error"); len(errorEntries) != 0 {
		t.Errorf("nil error produced a log entry")
	}
}

func TestAddEventLogsWithSpanName(t *testing.T) {
	obs, logs := newObservedObserver(t)

	_, span := obs.StartSpan(context.Background(), "llm.call")
	span.AddEvent("http.response.received", observability.Int("http.status_code", 200))

	events := entriesWithMessage(logs, "span event")
	if len(events) != 1 {
		t.Fatalf("expected one event entry, got %d", len(events))
	}
	fields := events[0].ContextMap()
	if fields["span"] != "llm.call" || fields["event"] != "http.response.received" {
		t.Errorf("unexpected event fields: %v", fields)
	}
}

func TestCounterAccumulatesAndIsReused(t *testing.T) {
	obs, logs := newObservedObserver(t)
	ctx := context.Background()

	counter := obs.Counter("pipeline.node.count")
	counter.Add(ctx, 1)
	obs.Counter("pipeline.node.count").Add(ctx, 2)

	entries := entriesWithMessage(logs, "counter")
	if len(entries) != 2 {
		t.Fatalf("expected two counter entries, got %d", len(entries))
	}
	if entries[1].ContextMap()["value"] != int64(3) {
		t.Errorf("counter not shared across lookups: %v", entries[1].ContextMap())
	}
}

func TestHistogramRecordsObservation(t *testing.T) {
	obs, logs := newObservedObserver(t)

	obs.Histogram("pipeline.node.duration").Record(context.Background(), 0.25,
		observability.String("pipeline.node.id", "parse_timeline_node"),
	)

	entries := entriesWithMessage(logs, "histogram")
	if len(entries) != 1 {
		t.Fatalf("expected one histogram entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["value"] != 0.25 {
		t.Errorf("unexpected observation: %v", entries[0].ContextMap())
	}
}

func TestLogLevels(t *testing.T) {
	obs, logs := newObservedObserver(t)
	ctx := context.Background()

	obs.Debug(ctx, "debug message")
	obs.Info(ctx, "info message")
	obs.Warn(ctx, "warn message")
	obs.Error(ctx, "error message")

	levels := map[string]zapcore.Level{
		"debug message": zapcore.DebugLevel,
		"info message":  zapcore.InfoLevel,
		"warn message":  zapcore.WarnLevel,
		"error message": zapcore.ErrorLevel,
	}

	for _, entry := range logs.All() {
		wantLevel, known := levels[entry.Message]
		if known && entry.Level != wantLevel {
			t.Errorf("message %q logged at %v, want %v", entry.Message, entry.Level, wantLevel)
		}
	}
	if logs.Len() != 4 {
		t.Errorf("expected 4 entries, got %d", logs.Len())
	}
}
