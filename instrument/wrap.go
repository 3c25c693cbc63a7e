package instrument

import (
	"context"
	"encoding/json"
	"fmt"

	"chapterflow/graph"
	"chapterflow/observability"
)

// DefaultPromptStage is the stage allowed to export full prompt text.
const DefaultPromptStage = "create_prompt_node"

// Recorder wraps pipeline stages with span instrumentation driven by a
// snapshot Config. A Recorder with a nil provider and no provider on the
// execution context is a transparent pass-through.
type Recorder struct {
	config      Config
	observer    observability.Provider
	promptStage string
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithObserver sets the observability provider used for stage spans. If
// unset, the provider is resolved from the execution context per call.
func WithObserver(provider observability.Provider) RecorderOption {
	return func(recorder *Recorder) {
		recorder.observer = provider
	}
}

// WithPromptStage overrides the stage allowed to export full prompt text.
func WithPromptStage(stage string) RecorderOption {
	return func(recorder *Recorder) {
		recorder.promptStage = stage
	}
}

// NewRecorder creates a Recorder with the given snapshot config.
func NewRecorder(config Config, opts ...RecorderOption) *Recorder {
	recorder := &Recorder{
		config:      config,
		promptStage: DefaultPromptStage,
	}
	for _, opt := range opts {
		opt(recorder)
	}
	return recorder
}

// Wrap returns a NodeExecutor that runs the stage inside a span named after
// it, attaching input and output snapshots per the stage's policy.
//
// The wrapper never alters the stage's behavior: the stage's result and
// error pass through unchanged, and any failure inside the instrumentation
// itself is swallowed (with a warning where possible) rather than surfaced.
func (recorder *Recorder) Wrap(stage string, executor graph.NodeExecutor) graph.NodeExecutor {
	policy := recorder.config.Resolve(stage)

	return graph.NodeExecutorFunc(func(ctx context.Context, state graph.State) (graph.State, error) {
		observer := recorder.observer
		if observer == nil {
			observer = observability.ObserverFromContext(ctx)
		}
		if observer == nil {
			return executor.Execute(ctx, state)
		}

		spanContext, span := startStageSpan(ctx, observer, stage)
		if span == nil {
			return executor.Execute(ctx, state)
		}
		defer span.End()

		recorder.attachInput(spanContext, observer, span, stage, state, policy)

		result, err := executor.Execute(spanContext, state)
		if err != nil {
			recordStageError(span, err)
			return result, err
		}

		recorder.attachOutput(spanContext, observer, span, stage, state, result, policy)
		markStageCompleted(span)

		return result, nil
	})
}

// startStageSpan opens the stage span. A panicking provider yields a nil
// span, which disables instrumentation for this call.
func startStageSpan(ctx context.Context, observer observability.Provider, stage string) (spanContext context.Context, span observability.Span) {
	defer func() {
		if recovered := recover(); recovered != nil {
			spanContext, span = ctx, nil
		}
	}()

	spanContext, span = observer.StartSpan(ctx, stage,
		observability.String(observability.AttrNodeID, stage),
	)
	return spanContext, span
}

// attachInput captures the configured input fields onto the span. Snapshot
// failures are logged and swallowed so instrumentation can never block a
// stage from running.
func (recorder *Recorder) attachInput(ctx context.Context, observer observability.Provider, span observability.Span, stage string, state graph.State, policy Policy) {
	defer func() {
		if recovered := recover(); recovered != nil {
			observer.Warn(ctx, "failed to attach input snapshot",
				observability.String(observability.AttrNodeID, stage),
				observability.String("panic", fmt.Sprint(recovered)),
			)
		}
	}()

	if len(policy.InputPaths) == 0 {
		return
	}

	snapshot := recorder.snapshotInput(state, policy.InputPaths, stage, policy.TruncateInput)
	span.SetAttributes(observability.String(observability.AttrNodeInput, encodeSnapshot(snapshot)))
}

// attachOutput captures the configured output fields onto the span. A nil
// result records only its type, since there is no content to snapshot.
func (recorder *Recorder) attachOutput(ctx context.Context, observer observability.Provider, span observability.Span, stage string, state graph.State, result graph.State, policy Policy) {
	defer func() {
		if recovered := recover(); recovered != nil {
			observer.Warn(ctx, "failed to attach output snapshot",
				observability.String(observability.AttrNodeID, stage),
				observability.String("panic", fmt.Sprint(recovered)),
			)
		}
	}()

	if len(policy.OutputPaths) == 0 {
		return
	}

	if result == nil {
		span.SetAttributes(observability.String(observability.AttrNodeOutput,
			encodeSnapshot(Descriptor{"type": fmt.Sprintf("%T", result)}),
		))
		return
	}

	snapshot := recorder.snapshotOutput(result, state, policy.OutputPaths, policy.TruncateOutput)
	span.SetAttributes(observability.String(observability.AttrNodeOutput, encodeSnapshot(snapshot)))
}

// recordStageError marks the span failed. The stage's error itself is never
// modified; span recording failures are swallowed.
func recordStageError(span observability.Span, stageError error) {
	defer func() {
		_ = recover() //nolint:errcheck
	}()

	span.RecordError(stageError)
	span.SetStatus(observability.StatusError, "stage failed")
}

func markStageCompleted(span observability.Span) {
	defer func() {
		_ = recover() //nolint:errcheck
	}()

	span.SetStatus(observability.StatusOK, "stage completed")
}

// encodeSnapshot renders a snapshot as compact JSON for span attributes.
func encodeSnapshot(snapshot any) string {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Sprintf("%+v", snapshot)
	}
	return string(encoded)
}
