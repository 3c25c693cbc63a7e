package summary

import (
	"context"
	"fmt"

	"chapterflow/graph"
	"chapterflow/instrument"
)

// BuildGraph assembles the outer summarization pipeline:
//
//	create_folder_dao → enumerate_chapters_to_run_node
//	  →(routing)→ chapter_<c>_summary_node, one per available chapter
//	  → chapter_summary_completed_node (fan-in)
//	  → chapter_summary_deep_merge_node → structured_to_map_node
//
// Every branch is registered at build time; routing decides per run which
// branches receive work. All nodes, branches included, are wrapped by the
// Recorder before registration. recorder may be nil to build an
// uninstrumented pipeline; subgraphs must cover every available chapter.
func BuildGraph(cfg Config, recorder *instrument.Recorder, subgraphs map[string]ChapterSubgraph, opts ...graph.Option) (*graph.Graph, error) {
	wrap := func(stage string, executor graph.NodeExecutorFunc) graph.NodeExecutor {
		if recorder == nil {
			return executor
		}
		return recorder.Wrap(stage, executor)
	}

	options := append([]graph.Option{graph.WithAppendKeys(KeyChapterResults)}, opts...)

	builder := graph.NewBuilder(options...).
		AddNode(NodeCreateFolderDAO, wrap(NodeCreateFolderDAO, CreateFolderDAO)).
		AddNode(NodeEnumerateChapters, wrap(NodeEnumerateChapters, EnumerateChaptersToRun)).
		AddNode(NodeChapterCompleted, wrap(NodeChapterCompleted, ChapterSummaryCompleted)).
		AddNode(NodeChapterDeepMerge, wrap(NodeChapterDeepMerge, ChapterSummaryDeepMerge)).
		AddNode(NodeStructuredToMap, wrap(NodeStructuredToMap, StructuredToMap)).
		AddEdge(NodeCreateFolderDAO, NodeEnumerateChapters).
		AddEdge(NodeChapterCompleted, NodeChapterDeepMerge).
		AddEdge(NodeChapterDeepMerge, NodeStructuredToMap)

	branchNames := make([]string, 0, len(cfg.Timeline.AvailableChapters))
	for _, chapter := range cfg.Timeline.AvailableChapters {
		subgraph, registered := subgraphs[chapter]
		if !registered || subgraph == nil {
			return nil, fmt.Errorf("no subgraph registered for chapter %q", chapter)
		}

		branchName := BranchNodeName(chapter)
		branchNames = append(branchNames, branchName)

		builder.
			AddNode(branchName, wrap(branchName, branchExecutor(chapter, subgraph))).
			AddEdge(branchName, NodeChapterCompleted)
	}

	builder.AddConditionalEdges(NodeEnumerateChapters, ChapterRouting(cfg.Timeline.AvailableChapters), branchNames)

	return builder.Build()
}

// branchExecutor returns the closure registered as a chapter's branch node.
// It copies the shared timeline config, projects the branch-local state,
// invokes the chapter's subgraph once, and contributes the result as a
// single-entry map under the append key. A subgraph error propagates
// unchanged and aborts the run.
func branchExecutor(chapter string, subgraph ChapterSubgraph) graph.NodeExecutorFunc {
	return func(ctx context.Context, state graph.State) (graph.State, error) {
		cfg, err := configFromState(state)
		if err != nil {
			return nil, err
		}

		branch, err := BuildBranchState(state, chapter, cfg.Timeline.Clone())
		if err != nil {
			return nil, err
		}

		timeline, err := subgraph.Invoke(ctx, branch)
		if err != nil {
			return nil, err
		}

		return graph.State{
			KeyChapterResults: []map[string]Timeline{{chapter: timeline}},
		}, nil
	}
}
