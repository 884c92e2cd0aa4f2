package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

// Graph node names. The branch picked for a turn is observable through the
// routed-turn metric under these labels.
const (
	NodeFileReading = "file_reading_graph"
	NodeDataAnalyze = "data_analyze_graph"
)

// Workflow is one routable sub-workflow: it receives the turn state and
// returns it extended with the messages the workflow produced.
type Workflow func(ctx context.Context, state *AgentState) (*AgentState, error)

// routeTurn picks the branch for a turn. The conversation must already hold
// at least one message; routing an empty conversation is a caller bug and
// panics. A newest message carrying attachments routes into file reading,
// anything else into data analysis.
func routeTurn(state *AgentState) string {
	last := state.Messages[len(state.Messages)-1]
	if last.HasAttachments() {
		return NodeFileReading
	}
	return NodeDataAnalyze
}

// BuildGraph compiles the two sub-workflows into a single runnable:
// start branches on the newest message's attachments, both nodes finish the
// turn. Multi-turn looping stays with the caller, which invokes the
// compiled graph once per turn.
func BuildGraph(ctx context.Context, fileReading, dataAnalyze Workflow) (compose.Runnable[*AgentState, *AgentState], error) {
	g := compose.NewGraph[*AgentState, *AgentState]()

	fileReadingNode := compose.InvokableLambda(func(ctx context.Context, state *AgentState) (*AgentState, error) {
		return fileReading(ctx, state)
	})
	if err := g.AddLambdaNode(NodeFileReading, fileReadingNode); err != nil {
		return nil, fmt.Errorf("add %s: %w", NodeFileReading, err)
	}
	dataAnalyzeNode := compose.InvokableLambda(func(ctx context.Context, state *AgentState) (*AgentState, error) {
		return dataAnalyze(ctx, state)
	})
	if err := g.AddLambdaNode(NodeDataAnalyze, dataAnalyzeNode); err != nil {
		return nil, fmt.Errorf("add %s: %w", NodeDataAnalyze, err)
	}

	router := func(ctx context.Context, state *AgentState) (string, error) {
		return routeTurn(state), nil
	}
	branch := compose.NewGraphBranch(router, map[string]bool{
		NodeFileReading: true,
		NodeDataAnalyze: true,
	})
	if err := g.AddBranch(compose.START, branch); err != nil {
		return nil, fmt.Errorf("add branch: %w", err)
	}
	if err := g.AddEdge(NodeFileReading, compose.END); err != nil {
		return nil, fmt.Errorf("edge %s: %w", NodeFileReading, err)
	}
	if err := g.AddEdge(NodeDataAnalyze, compose.END); err != nil {
		return nil, fmt.Errorf("edge %s: %w", NodeDataAnalyze, err)
	}

	return g.Compile(ctx)
}
