package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tabula/internal/llm"
	"tabula/internal/observability"
	"tabula/internal/safety"
	"tabula/internal/shared/token"
	"tabula/internal/utils"
	"tabula/pkg/types/message"
)

// CodeExecutor runs a generated code snippet in a sandbox and returns its
// textual output. Implementations live outside this module; nil disables
// execution.
type CodeExecutor interface {
	Execute(ctx context.Context, code string) (string, error)
}

const analysisPrompt = `You are a data analyst. Answer questions about the user's tabular datasets using the conversation and the column information provided. When a computation is required, respond with a short explanation and a single fenced python code block operating on the loaded dataframes.`

// DataAnalysisConfig tunes the data-analysis workflow.
type DataAnalysisConfig struct {
	// MaxHistoryTokens bounds the filtered history handed to the model.
	// Zero means unbounded.
	MaxHistoryTokens int
	// Locale, when set, asks the model to respond in that locale.
	Locale string
}

// DataAnalysis answers an analysis turn: it gathers column context for the
// entry message, hands the filtered conversation to the chat model, scans
// any generated code, and optionally executes it.
type DataAnalysis struct {
	config         DataAnalysisConfig
	model          llm.ChatModel
	retriever      DatasetRetriever
	safety         *safety.Adapter
	executor       CodeExecutor
	metrics        *observability.MetricsCollector
	contextMetrics *observability.ContextMetrics
	logger         *utils.Logger
}

// NewDataAnalysis builds the workflow. Only the chat model is required.
func NewDataAnalysis(config DataAnalysisConfig, model llm.ChatModel, retriever DatasetRetriever, scanner *safety.Adapter, executor CodeExecutor, metrics *observability.MetricsCollector) *DataAnalysis {
	return &DataAnalysis{
		config:         config,
		model:          model,
		retriever:      retriever,
		safety:         scanner,
		executor:       executor,
		metrics:        metrics,
		contextMetrics: observability.NewContextMetrics(),
		logger:         utils.NewComponentLogger("data-analysis"),
	}
}

// Run produces the assistant reply for the turn plus any security report
// and execution output, appending all of them to the state.
func (w *DataAnalysis) Run(ctx context.Context, state *AgentState) (*AgentState, error) {
	w.metrics.RecordRoutedTurn(ctx, NodeDataAnalyze)

	entry := state.EntryMessage
	if entry == nil {
		entry = state.LastMessage()
	}
	query := entry.Text()

	columnContext := ""
	if w.retriever != nil {
		var err error
		columnContext, err = w.retriever.ColumnContext(ctx, query)
		if err != nil {
			w.logger.Warn("Column context unavailable: %v", err)
			columnContext = ""
		}
	}
	w.contextMetrics.RecordColumnContext(columnContext != "")

	conversation := w.buildConversation(state, columnContext)
	reply, err := w.model.Chat(ctx, conversation)
	if err != nil {
		return nil, fmt.Errorf("analysis turn: %w", err)
	}
	state.Append(reply)

	code := extractCode(reply.Text())
	if code == "" {
		return state, nil
	}

	report, blocked := w.safety.ScanLLMOutput(ctx, code)
	if w.safety != nil {
		w.metrics.RecordScanVerdict(ctx, scanOutcome(report, blocked))
	}
	if report != "" {
		state.Append(message.NewSystemMessage(report))
	}
	if blocked {
		w.logger.Warn("Generated code blocked by security scan")
		return state, nil
	}

	if w.executor != nil {
		output, err := w.executor.Execute(ctx, code)
		if err != nil {
			w.logger.Warn("Code execution failed: %v", err)
			output = fmt.Sprintf("execution failed: %v", err)
		}
		state.Append(message.NewMessage(message.RoleTool, output))
	}
	return state, nil
}

// buildConversation assembles the model input: a system prompt carrying the
// date, locale and column context, then the text-only history bounded by
// the token budget. Filtering copies; persisted messages stay intact.
func (w *DataAnalysis) buildConversation(state *AgentState, columnContext string) []*message.Message {
	var b strings.Builder
	b.WriteString(analysisPrompt)
	if state.Date != "" {
		fmt.Fprintf(&b, "\nToday is %s.", state.Date)
	}
	if w.config.Locale != "" {
		fmt.Fprintf(&b, "\nRespond in the %s locale.", w.config.Locale)
	}
	if columnContext != "" {
		b.WriteString("\n")
		b.WriteString(columnContext)
	}

	history := message.FilterHistory(state.Messages)
	bounded := truncateHistory(history, w.config.MaxHistoryTokens)
	if len(bounded) < len(history) {
		w.contextMetrics.RecordTruncation("history")
	}

	system := b.String()
	w.contextMetrics.RecordTokensBySection("system", tokenutil.Count(system))
	w.contextMetrics.RecordTokensBySection("columns", tokenutil.Count(columnContext))
	historyTokens := 0
	for _, msg := range bounded {
		historyTokens += tokenutil.Count(msg.Text())
	}
	w.contextMetrics.RecordTokensBySection("history", historyTokens)

	conversation := make([]*message.Message, 0, len(bounded)+1)
	conversation = append(conversation, message.NewSystemMessage(system))
	return append(conversation, bounded...)
}

// truncateHistory drops oldest messages until the remainder fits the token
// budget. The newest message always survives.
func truncateHistory(history []*message.Message, maxTokens int) []*message.Message {
	if maxTokens <= 0 || len(history) <= 1 {
		return history
	}
	spent := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := tokenutil.Count(history[i].Text())
		if spent+cost > maxTokens && start < len(history) {
			break
		}
		spent += cost
		start = i
	}
	return history[start:]
}

var codeFence = regexp.MustCompile("(?s)```(?:python|py)?[ \t]*\n(.*?)```")

// extractCode returns the first fenced code block in the reply, or "".
func extractCode(text string) string {
	match := codeFence.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func scanOutcome(report string, blocked bool) string {
	switch {
	case blocked:
		return "block"
	case report != "":
		return "warn"
	default:
		return "clean"
	}
}
