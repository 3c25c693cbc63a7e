package summary

import (
	"context"
	"fmt"
	"strings"

	"chapterflow/graph"
	"chapterflow/instrument"
	"chapterflow/internal/parse"
)

// Completer is the LLM collaborator's interface. Prompt construction,
// retries and model selection live behind it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChapterSubgraph is one chapter's independently compiled processing unit.
// It is invoked exactly once per activated branch per run.
type ChapterSubgraph interface {
	Invoke(ctx context.Context, branch BranchState) (Timeline, error)
}

// Inner subgraph node names, stable for config and trace spans.
const (
	NodeCollectEntries   = "collect_entries"
	NodeCreatePrompt     = "create_prompt_node"
	NodeSummarizeChapter = "summarize_chapter"
	NodeParseTimeline    = "parse_timeline_node"
)

// Inner subgraph state keys.
const (
	keyBranchChapter = "chapter"
	keyBranchEntries = "entries"
	keyEntryMarkdown = "entry_markdown"
	keyPrompt        = "prompt"
	keyLLMResponse   = "llm_response"
	keyTimeline      = "timeline"
)

// TimelineBuilder compiles per-chapter subgraphs. Each subgraph is a small
// pipeline of its own: collect the chapter's documents, build the prompt,
// call the model, parse the structured timeline. Its nodes are wrapped by
// the same Recorder as the outer pipeline, so traces nest per chapter.
type TimelineBuilder struct {
	completer Completer
	recorder  *instrument.Recorder
}

// NewTimelineBuilder creates a builder. recorder may be nil to compile
// uninstrumented subgraphs.
func NewTimelineBuilder(completer Completer, recorder *instrument.Recorder) *TimelineBuilder {
	return &TimelineBuilder{completer: completer, recorder: recorder}
}

// BuildAll compiles one subgraph per chapter.
func (builder *TimelineBuilder) BuildAll(chapters []string) (map[string]ChapterSubgraph, error) {
	subgraphs := make(map[string]ChapterSubgraph, len(chapters))
	for _, chapter := range chapters {
		subgraph, err := builder.Build(chapter)
		if err != nil {
			return nil, err
		}
		subgraphs[chapter] = subgraph
	}
	return subgraphs, nil
}

// Build compiles the subgraph for one chapter.
func (builder *TimelineBuilder) Build(chapter string) (ChapterSubgraph, error) {
	wrap := func(stage string, executor graph.NodeExecutorFunc) graph.NodeExecutor {
		if builder.recorder == nil {
			return executor
		}
		return builder.recorder.Wrap(stage, executor)
	}

	pipeline, err := graph.NewBuilder().
		AddNode(NodeCollectEntries, wrap(NodeCollectEntries, collectEntries)).
		AddNode(NodeCreatePrompt, wrap(NodeCreatePrompt, createPrompt)).
		AddNode(NodeSummarizeChapter, wrap(NodeSummarizeChapter, builder.summarizeChapter)).
		AddNode(NodeParseTimeline, wrap(NodeParseTimeline, parseTimeline)).
		AddEdge(NodeCollectEntries, NodeCreatePrompt).
		AddEdge(NodeCreatePrompt, NodeSummarizeChapter).
		AddEdge(NodeSummarizeChapter, NodeParseTimeline).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to compile subgraph for chapter %q: %w", chapter, err)
	}

	return &compiledSubgraph{chapter: chapter, pipeline: pipeline}, nil
}

type compiledSubgraph struct {
	chapter  string
	pipeline *graph.Graph
}

func (subgraph *compiledSubgraph) Invoke(ctx context.Context, branch BranchState) (Timeline, error) {
	finalState, err := subgraph.pipeline.Execute(ctx, graph.State{
		keyBranchChapter:   branch.Chapter,
		keyBranchEntries:   branch.Entries,
		KeyDAO:             branch.DAO,
		KeyFolderID:        branch.FolderID,
		KeySourceAvailable: branch.SourceAvailable,
	})
	if err != nil {
		return Timeline{}, err
	}

	timeline, ok := finalState[keyTimeline].(Timeline)
	if !ok {
		return Timeline{}, fmt.Errorf("chapter %q subgraph produced no timeline", subgraph.chapter)
	}

	if timeline.Chapter == "" {
		timeline.Chapter = subgraph.chapter
	}

	return timeline, nil
}

// collectEntries gathers the markdown of this branch's documents, in entry
// order, separated by document headers.
func collectEntries(ctx context.Context, state graph.State) (graph.State, error) {
	dao, err := daoFromState(state)
	if err != nil {
		return nil, err
	}

	entries, _ := state[keyBranchEntries].([]string)

	var sections []string
	for _, documentID := range entries {
		document, found := dao.Document(documentID)
		if !found {
			return nil, fmt.Errorf("document %q not found in folder %q", documentID, dao.FolderID())
		}
		sections = append(sections, fmt.Sprintf("## Document %s\n\n%s", document.ID, document.Markdown))
	}

	return graph.State{keyEntryMarkdown: strings.Join(sections, "\n\n")}, nil
}

// createPrompt renders the summarization prompt for the chapter. This is
// the one stage allowed to export full prompt text to traces.
func createPrompt(ctx context.Context, state graph.State) (graph.State, error) {
	chapter, _ := state[keyBranchChapter].(string)
	entryMarkdown, _ := state[keyEntryMarkdown].(string)

	if entryMarkdown == "" {
		return nil, fmt.Errorf("no source material collected for chapter %q", chapter)
	}

	prompt := fmt.Sprintf(`Extract a chronological timeline of events for the chapter %q from the documents below.

Respond with JSON only, in this shape:
{"chapter": %q, "events": [{"date": "YYYY-MM-DD", "description": "...", "document_id": "..."}]}

Sort events by date. Use an empty date string when no date is stated.

%s`, chapter, chapter, entryMarkdown)

	return graph.State{keyPrompt: prompt}, nil
}

// summarizeChapter calls the model with the rendered prompt.
func (builder *TimelineBuilder) summarizeChapter(ctx context.Context, state graph.State) (graph.State, error) {
	prompt, _ := state[keyPrompt].(string)
	if prompt == "" {
		return nil, fmt.Errorf("no prompt in state")
	}

	response, err := builder.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return graph.State{keyLLMResponse: response}, nil
}

// parseTimeline decodes the model response into a Timeline, tolerating
// fenced and malformed JSON.
func parseTimeline(ctx context.Context, state graph.State) (graph.State, error) {
	response, _ := state[keyLLMResponse].(string)
	if response == "" {
		return nil, fmt.Errorf("no model response in state")
	}

	timeline, err := parse.FromResponse[Timeline](response)
	if err != nil {
		return nil, err
	}

	return graph.State{keyTimeline: timeline}, nil
}
