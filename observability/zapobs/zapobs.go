package zapobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chapterflow/observability"
)

// Observer implements observability.Provider on top of go.uber.org/zap.
// It routes spans, metrics and log events through a structured zap.Logger,
// making it suitable as a lightweight tracing backend: every span start,
// attribute update, error and end event becomes one structured log entry.
type Observer struct {
	logger  *zap.Logger
	metrics *metricsStore
}

// New creates a new zap-based observer. By default a production zap logger
// is used; pass WithLogger to supply a preconfigured one (tests typically
// inject a zaptest observer core).
func New(opts ...Option) *Observer {
	cfg := applyOptions(opts...)

	logger := cfg.logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	return &Observer{
		logger:  logger,
		metrics: newMetricsStore(),
	}
}

// Ensure Observer implements observability.Provider.
var _ observability.Provider = (*Observer)(nil)

// --- TRACING ---

// StartSpan begins a new named span and emits a debug log event at its start.
// The returned Span accumulates attributes until End is called, at which
// point the elapsed duration and all attributes are logged in one entry.
func (o *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	span := &zapSpan{
		name:      name,
		startTime: time.Now(),
		logger:    o.logger,
		attrs:     attrs,
	}

	fields := []zap.Field{
		zap.String("span", name),
		zap.String("event", "span.start"),
	}
	fields = appendAttrFields(fields, attrs)
	o.logger.Debug("span started", fields...)

	return ctx, span
}

type zapSpan struct {
	name      string
	startTime time.Time
	logger    *zap.Logger
	mu        sync.Mutex
	attrs     []observability.Attribute
}

// End completes the span, logging the elapsed time and every attribute
// accumulated over the span's lifetime.
func (s *zapSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := []zap.Field{
		zap.String("span", s.name),
		zap.String("event", "span.end"),
		zap.Duration("duration", time.Since(s.startTime)),
	}
	fields = appendAttrFields(fields, s.attrs)
	s.logger.Info("span ended", fields...)
}

// SetAttributes appends the provided attributes to the span's attribute list.
func (s *zapSpan) SetAttributes(attrs ...observability.Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, attrs...)
}

// SetStatus records the final status of the span.
func (s *zapSpan) SetStatus(code observability.StatusCode, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var statusStr string
	switch code {
	case observability.StatusOK:
		statusStr = "ok"
	case observability.StatusError:
		statusStr = "error"
	default:
		statusStr = "unset"
	}

	s.attrs = append(s.attrs, observability.String(observability.AttrStatus, statusStr))
	if description != "" {
		s.attrs = append(s.attrs, observability.String(observability.AttrStatusDescription, description))
	}
}

// RecordError records the provided error as a span attribute and logs it at
// error level. A nil error is ignored.
func (s *zapSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attrs = append(s.attrs, observability.Error(err))
	s.logger.Error("span error",
		zap.String("span", s.name),
		zap.String("event", "error"),
		zap.Error(err),
	)
}

// AddEvent logs a named event on the span's timeline at debug level.
func (s *zapSpan) AddEvent(name string, attrs ...observability.Attribute) {
	fields := []zap.Field{
		zap.String("span", s.name),
		zap.String("event", name),
	}
	fields = appendAttrFields(fields, attrs)
	s.logger.Debug("span event", fields...)
}

// --- METRICS ---

// Counter returns a named observability.Counter backed by the in-memory
// metrics store. Multiple calls with the same name return the same counter.
func (o *Observer) Counter(name string) observability.Counter {
	return o.metrics.getCounter(name, o.logger)
}

// Histogram returns a named observability.Histogram backed by the in-memory
// metrics store. Multiple calls with the same name return the same histogram.
func (o *Observer) Histogram(name string) observability.Histogram {
	return o.metrics.getHistogram(name, o.logger)
}

// metricsStore holds metrics in memory (thread-safe).
type metricsStore struct {
	mu         sync.RWMutex
	counters   map[string]*zapCounter
	histograms map[string]*zapHistogram
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		counters:   make(map[string]*zapCounter),
		histograms: make(map[string]*zapHistogram),
	}
}

func (m *metricsStore) getCounter(name string, logger *zap.Logger) *zapCounter {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()
	if exists {
		return counter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if counter, exists := m.counters[name]; exists {
		return counter
	}
	counter = &zapCounter{name: name, logger: logger}
	m.counters[name] = counter
	return counter
}

func (m *metricsStore) getHistogram(name string, logger *zap.Logger) *zapHistogram {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()
	if exists {
		return histogram
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if histogram, exists := m.histograms[name]; exists {
		return histogram
	}
	histogram = &zapHistogram{name: name, logger: logger}
	m.histograms[name] = histogram
	return histogram
}

type zapCounter struct {
	name   string
	logger *zap.Logger
	mu     sync.Mutex
	value  int64
}

// Add increments the counter by value and logs the updated total at debug level.
func (c *zapCounter) Add(_ context.Context, value int64, attrs ...observability.Attribute) {
	c.mu.Lock()
	c.value += value
	currentValue := c.value
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("metric", c.name),
		zap.String("type", "counter"),
		zap.Int64("value", currentValue),
		zap.Int64("delta", value),
	}
	fields = appendAttrFields(fields, attrs)
	c.logger.Debug("counter", fields...)
}

type zapHistogram struct {
	name   string
	logger *zap.Logger
}

// Record logs a histogram observation at debug level.
func (h *zapHistogram) Record(_ context.Context, value float64, attrs ...observability.Attribute) {
	fields := []zap.Field{
		zap.String("metric", h.name),
		zap.String("type", "histogram"),
		zap.Float64("value", value),
	}
	fields = appendAttrFields(fields, attrs)
	h.logger.Debug("histogram", fields...)
}

// --- LOGGING ---

// Debug logs a message at DEBUG level with structured attributes.
func (o *Observer) Debug(_ context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.Debug(msg, appendAttrFields(nil, attrs)...)
}

// Info logs a message at INFO level with structured attributes.
func (o *Observer) Info(_ context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.Info(msg, appendAttrFields(nil, attrs)...)
}

// Warn logs a message at WARN level with structured attributes.
func (o *Observer) Warn(_ context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.Warn(msg, appendAttrFields(nil, attrs)...)
}

// Error logs a message at ERROR level with structured attributes.
func (o *Observer) Error(_ context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.Error(msg, appendAttrFields(nil, attrs)...)
}

func appendAttrFields(fields []zap.Field, attrs []observability.Attribute) []zap.Field {
	for _, attr := range attrs {
		fields = append(fields, zap.Any(attr.Key, attr.Value))
	}
	return fields
}
