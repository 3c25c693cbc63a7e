package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapterflow/graph"
	"chapterflow/observability"
)

// capturingProvider records spans so tests can inspect what the wrapper
// attached.
type capturingProvider struct {
	mu    sync.Mutex
	spans []*capturedSpan
	warns []string
}

var _ observability.Provider = (*capturingProvider)(nil)

type capturedSpan struct {
	name       string
	attributes map[string]any
	status     observability.StatusCode
	err        error
	ended      bool
}

func (provider *capturingProvider) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	provider.mu.Lock()
	defer provider.mu.Unlock()

	span := &capturedSpan{name: name, attributes: make(map[string]any)}
	for _, attr := range attrs {
		span.attributes[attr.Key] = attr.Value
	}
	provider.spans = append(provider.spans, span)
	return ctx, span
}

func (provider *capturingProvider) Counter(_ string) observability.Counter       { return nopCounter{} }
func (provider *capturingProvider) Histogram(_ string) observability.Histogram   { return nopHistogram{} }
func (provider *capturingProvider) Debug(_ context.Context, _ string, _ ...observability.Attribute) {}
func (provider *capturingProvider) Info(_ context.Context, _ string, _ ...observability.Attribute)  {}
func (provider *capturingProvider) Error(_ context.Context, _ string, _ ...observability.Attribute) {}

func (provider *capturingProvider) Warn(_ context.Context, msg string, _ ...observability.Attribute) {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	provider.warns = append(provider.warns, msg)
}

func (provider *capturingProvider) lastSpan() *capturedSpan {
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.spans) == 0 {
		return nil
	}
	return provider.spans[len(provider.spans)-1]
}

func (span *capturedSpan) End() { span.ended = true }

func (span *capturedSpan) SetAttributes(attrs ...observability.Attribute) {
	for _, attr := range attrs {
		span.attributes[attr.Key] = attr.Value
	}
}

func (span *capturedSpan) SetStatus(code observability.StatusCode, _ string) { span.status = code }
func (span *capturedSpan) RecordError(err error)                             { span.err = err }
func (span *capturedSpan) AddEvent(_ string, _ ...observability.Attribute)   {}

type nopCounter struct{}

func (nopCounter) Add(_ context.Context, _ int64, _ ...observability.Attribute) {}

type nopHistogram struct{}

func (nopHistogram) Record(_ context.Context, _ float64, _ ...observability.Attribute) {}

func decodeSnapshotAttr(t *testing.T, span *capturedSpan, key string) map[string]Descriptor {
	t.Helper()

	raw, present := span.attributes[key]
	require.True(t, present, "attribute %q not attached", key)

	var snapshot map[string]Descriptor
	require.NoError(t, json.Unmarshal([]byte(raw.(string)), &snapshot))
	return snapshot
}

func testPolicyConfig() Config {
	return Config{
		"stage": NodePolicy{
			Input:  []string{"folder_id"},
			Output: []string{"produced"},
		},
	}
}

func TestWrapWithoutObserverIsPassThrough(t *testing.T) {
	recorder := NewRecorder(testPolicyConfig())

	executed := false
	wrapped := recorder.Wrap("stage", graph.NodeExecutorFunc(func(_ context.Context, _ graph.State) (graph.State, error) {
		executed = true
		return graph.State{"produced": 1}, nil
	}))

	result, err := wrapped.Execute(context.Background(), graph.State{"folder_id": "2041"})

	require.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, graph.State{"produced": 1}, result)
}

func TestWrapOpensSpanNamedAfterStage(t *testing.T) {
	provider := &capturingProvider{}
	recorder := NewRecorder(testPolicyConfig(), WithObserver(provider))

	wrapped := recorder.Wrap("stage", graph.NodeExecutorFunc(func(_ context.Context, _ graph.State) (graph.State, error) {
		return graph.State{"produced": "value"}, nil
	}))

	_, err := wrapped.Execute(context.Background(), graph.State{"folder_id": "2041"})
	require.NoError(t, err)

	span := provider.lastSpan()
	require.NotNil(t, span)
	assert.Equal(t, "stage", span.name)
	assert.True(t, span.ended, "span must end on success")
	assert.Equal(t, observability.StatusOK, span.status)
}

func TestWrapAttachesInputAndOutputSnapshots(t *testing.T) {
	provider := &capturingProvider{}
	recorder := NewRecorder(testPolicyConfig(), WithObserver(provider))

	wrapped := recorder.Wrap("stage", graph.NodeExecutorFunc(func(_ context.Context, _ graph.State) (graph.State, error) {
		return graph.State{"produced": "fresh"}, nil
	}))

	_, err := wrapped.Execute(context.Background(), graph.State{"folder_id": "2041"})
	require.NoError(t, err)

	span := provider.lastSpan()
	require.NotNil(t, span)

	input := decodeSnapshotAttr(t, span, observability.AttrNodeInput)
	require.Contains(t, input, "folder_id")
	assert.Equal(t, "2041", input["folder_id"]["preview"])

	output := decodeSnapshotAttr(t, span, observability.AttrNodeOutput)
	require.Contains(t, output, "produced")
	assert.Equal(t, "fresh", output["produced"]["preview"])
}

func TestWrapResolvesObserverFromContext(t *testing.T) {
	provider := &capturingProvider{}
	recorder := NewRecorder(testPolicyConfig())

	wrapped := recorder.Wrap("stage", graph.NodeExecutorFunc(func(_ context.Context, _ graph.State) (graph.State, error) {
		return graph.State{}, nil
	}))

	ctx := observability.ContextWithObserver(context.Background(), provider)
	_, err := wrapped.Execute(ctx, graph.State{"folder_id": "2041"})
	require.NoError(t, err)

	require.NotNil(t, provider.lastSpan())
}

func TestWrapPropagatesStageErrorUnchanged(t *testing.T) {
	provider := &capturingProvider{}
	recorder := NewRecorder(testPolicyConfig(), WithObserver(provider))

	sentinel := errors.New("business failure")
	wrapped := recorder.Wrap("stage", graph.NodeExecutorFunc(func(_ context.Context, _ graph.State) (graph.State, error) {
		return nil, sentinel
	}))

	_, err := wrapped.Execute(context.Background(), graph.State{})

	assert.Same(t, sentinel, err, "stage errors must pass through without wrapping")

	span := provider.lastSpan()
	require.NotNil(t, span)
	assert.Same(t, sentinel, span.err)
	assert.Equal(t, observability.StatusError, span.status)
	assert.True(t, span.ended, "span must end on failure")
	assert.NotContains(t, span.attributes, observability.AttrNodeOutput,
		"no output snapshot on failure")
}

func TestWrapNilResultRecordsTypeOnly(t *testing.T) {
	provider := &capturingProvider{}
	recorder := NewRecorder(testPolicyConfig(), WithObserver(provider))

	wrapped := recorder.Wrap("stage", graph.NodeExecutorFunc(func(_ context.Context, _ graph.State) (graph.State, error) {
		return nil, nil
	}))

	_, err := wrapped.Execute(context.Background(), graph.State{})
	require.NoError(t, err)

	span := provider.lastSpan()
	require.NotNil(t, span)

	raw, present := span.attributes[observability.AttrNodeOutput]
	require.True(t, present)

	var descriptor Descriptor
	require.NoError(t, json.Unmarshal([]byte(raw.(string)), &descriptor))
	assert.Contains(t, descriptor, "type")
	assert.NotContains(t, descriptor, "produced")
}

func TestWrapSurvivesPanickingSnapshotSource(t *testing.T) {
	provider := &capturingProvider{}
	recorder := NewRecorder(Config{
		"stage": NodePolicy{Input: []string{"table"}},
	}, WithObserver(provider))

	wrapped := recorder.Wrap("stage", graph.NodeExecutorFunc(func(_ context.Context, _ graph.State) (graph.State, error) {
		return graph.State{"ok": true}, nil
	}))

	state := graph.State{"table": fakeTable{panics: true}}

	result, err := wrapped.Execute(context.Background(), state)

	require.NoError(t, err, "instrumentation failures must never fail the stage")
	assert.Equal(t, true, result["ok"])
}
