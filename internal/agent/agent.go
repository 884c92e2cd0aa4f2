package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"tabula/internal/dataset"
	"tabula/internal/llm"
	"tabula/internal/observability"
	"tabula/internal/safety"
)

// Config carries the tuning knobs for both workflows.
type Config struct {
	FileReading  FileReadingConfig
	DataAnalysis DataAnalysisConfig
}

// Deps are the collaborators the agent is assembled from. Model is
// required; everything else degrades gracefully when nil.
type Deps struct {
	Model     llm.ChatModel
	Reader    *dataset.Reader
	Retriever DatasetRetriever
	Safety    *safety.Adapter
	Executor  CodeExecutor
	Metrics   *observability.MetricsCollector
}

// Agent is the compiled two-branch conversation graph. One Invoke serves
// one turn; the caller owns multi-turn looping and persistence.
type Agent struct {
	graph compose.Runnable[*AgentState, *AgentState]
}

// New assembles the default workflows and compiles the routing graph.
func New(ctx context.Context, config Config, deps Deps) (*Agent, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("agent requires a chat model")
	}
	fileReading := NewFileReading(config.FileReading, deps.Reader, deps.Retriever, deps.Metrics)
	dataAnalysis := NewDataAnalysis(config.DataAnalysis, deps.Model, deps.Retriever, deps.Safety, deps.Executor, deps.Metrics)

	graph, err := BuildGraph(ctx, fileReading.Run, dataAnalysis.Run)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	return &Agent{graph: graph}, nil
}

// Invoke runs one routed turn over the state and returns the extended state.
func (a *Agent) Invoke(ctx context.Context, state *AgentState) (*AgentState, error) {
	return a.graph.Invoke(ctx, state)
}
