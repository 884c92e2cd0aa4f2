package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"tabula/internal/dataset"
	"tabula/internal/observability"
	"tabula/internal/utils"
	"tabula/pkg/types/message"
)

// DefaultHeadRows bounds the head preview rendered into the overview message.
const DefaultHeadRows = 5

// DatasetRetriever indexes parsed tables and answers column-context queries.
// *retriever.Service satisfies it; nil disables retrieval.
type DatasetRetriever interface {
	IndexTable(ctx context.Context, fileName string, table *dataset.Table) (int, error)
	ColumnContext(ctx context.Context, query string) (string, error)
}

// FileReadingConfig tunes the file-reading workflow.
type FileReadingConfig struct {
	// HeadRows is the number of preview rows in the overview message.
	HeadRows int
	// Workdir resolves bare attachment filenames. Empty means filenames
	// resolve relative to the process working directory.
	Workdir string
}

// FileReading ingests the entry message's attachments: each file is read
// into a table, summarized into an overview message, and indexed for
// column retrieval.
type FileReading struct {
	config    FileReadingConfig
	reader    *dataset.Reader
	retriever DatasetRetriever
	metrics   *observability.MetricsCollector
	logger    *utils.Logger
}

// NewFileReading builds the workflow. A nil reader gets a default one.
func NewFileReading(config FileReadingConfig, reader *dataset.Reader, retriever DatasetRetriever, metrics *observability.MetricsCollector) *FileReading {
	if config.HeadRows <= 0 {
		config.HeadRows = DefaultHeadRows
	}
	if reader == nil {
		reader = dataset.NewReader(nil)
	}
	return &FileReading{
		config:    config,
		reader:    reader,
		retriever: retriever,
		metrics:   metrics,
		logger:    utils.NewComponentLogger("file-reading"),
	}
}

// Run reads every attachment on the entry message, appends one overview
// message per table, and advances the ingestion stage as it goes.
func (w *FileReading) Run(ctx context.Context, state *AgentState) (*AgentState, error) {
	w.metrics.RecordRoutedTurn(ctx, NodeFileReading)

	entry := state.EntryMessage
	if entry == nil {
		entry = state.LastMessage()
	}
	if entry == nil || !entry.HasAttachments() {
		return nil, fmt.Errorf("file reading invoked without attachments")
	}

	state.Stage = StageUploaded

	type parsed struct {
		name  string
		table *dataset.Table
	}
	tables := make([]parsed, 0, len(entry.Meta.Attachments))
	for _, att := range entry.Meta.Attachments {
		uri := att.URI
		if uri == "" {
			uri = filepath.Join(w.config.Workdir, att.Filename)
		}
		name := att.Filename
		if name == "" {
			name = filepath.Base(uri)
		}

		start := time.Now()
		table, err := w.reader.ReadTable(ctx, uri)
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		if err != nil {
			w.metrics.RecordIngest(ctx, format, "error", time.Since(start))
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		w.metrics.RecordIngest(ctx, format, "ok", time.Since(start))

		rows, cols := table.Shape()
		w.logger.Info("Read %s: %d rows, %d columns", name, rows, cols)
		tables = append(tables, parsed{name: name, table: table})
	}

	state.Stage = StageInfoRead

	for _, p := range tables {
		state.Append(message.NewAssistantMessage(overviewText(p.name, p.table, w.config.HeadRows)))
		if w.retriever != nil {
			count, err := w.retriever.IndexTable(ctx, p.name, p.table)
			if err != nil {
				w.logger.Warn("Indexing %s failed: %v", p.name, err)
			} else {
				w.logger.Debug("Indexed %d column documents for %s", count, p.name)
			}
		}
	}

	state.Stage = StageHeadRead
	return state, nil
}

// overviewText renders the dataset summary shown to the user and the model:
// shape, per-column dtypes, and a bounded head preview.
func overviewText(name string, table *dataset.Table, headRows int) string {
	rows, cols := table.Shape()
	dtypes := table.DTypes()

	var b strings.Builder
	fmt.Fprintf(&b, "Dataset `%s` loaded: %d rows x %d columns.\n\n", name, rows, cols)

	b.WriteString("Columns:\n")
	for i, col := range table.Columns {
		fmt.Fprintf(&b, "- %s: %s\n", col, dtypes[i])
	}

	fmt.Fprintf(&b, "\nFirst %d rows:\n\n", min(headRows, rows))
	b.WriteString(table.Head(headRows).Markdown())
	return b.String()
}
