package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabula/internal/dataset"
	"tabula/internal/safety"
	"tabula/pkg/types/message"
)

type stubRetriever struct {
	indexed   []string
	context   string
	lastQuery string
	indexErr  error
	queryErr  error
}

func (s *stubRetriever) IndexTable(ctx context.Context, fileName string, table *dataset.Table) (int, error) {
	if s.indexErr != nil {
		return 0, s.indexErr
	}
	s.indexed = append(s.indexed, fileName)
	return len(table.Columns), nil
}

func (s *stubRetriever) ColumnContext(ctx context.Context, query string) (string, error) {
	s.lastQuery = query
	return s.context, s.queryErr
}

type recordingModel struct {
	reply  string
	inputs [][]*message.Message
}

func (m *recordingModel) Name() string { return "recording" }

func (m *recordingModel) Chat(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	m.inputs = append(m.inputs, messages)
	return message.NewAssistantMessage(m.reply), nil
}

type stubExecutor struct {
	output   string
	err      error
	calls    int
	lastCode string
}

func (e *stubExecutor) Execute(ctx context.Context, code string) (string, error) {
	e.calls++
	e.lastCode = code
	return e.output, e.err
}

type verdictScanner struct {
	verdict *safety.Verdict
}

func (s *verdictScanner) ScanCode(ctx context.Context, code string) (*safety.Verdict, error) {
	return s.verdict, nil
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func uploadState(att message.Attachment) *AgentState {
	entry := message.NewUserMessage("please load this file").WithAttachments(att)
	return &AgentState{
		Messages:     []*message.Message{entry},
		ParentID:     "turn-1",
		Date:         "2026-08-22",
		EntryMessage: entry,
	}
}

func TestFileReadingReadsAndIndexesAttachments(t *testing.T) {
	path := writeCSV(t, "sales.csv", "region,amount\nnorth,10\nsouth,20\neast,30\n")
	retr := &stubRetriever{}
	w := NewFileReading(FileReadingConfig{HeadRows: 2}, nil, retr, nil)

	state := uploadState(message.Attachment{Filename: "sales.csv", URI: "file://" + path})
	out, err := w.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, StageHeadRead, out.Stage)
	require.Len(t, out.Messages, 2)

	overview := out.LastMessage()
	assert.Equal(t, message.RoleAssistant, overview.Role)
	assert.Contains(t, overview.Text(), "Dataset `sales.csv` loaded: 3 rows x 2 columns.")
	assert.Contains(t, overview.Text(), "- region: object")
	assert.Contains(t, overview.Text(), "- amount: int64")
	assert.Contains(t, overview.Text(), "| region | amount |")
	assert.Contains(t, overview.Text(), "First 2 rows:")
	assert.NotContains(t, overview.Text(), "east", "head preview must respect the row bound")
	assert.Equal(t, "turn-1", overview.Meta.ParentID)

	assert.Equal(t, []string{"sales.csv"}, retr.indexed)
}

func TestFileReadingResolvesBareFilenamesAgainstWorkdir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ages.csv"), []byte("name,age\nann,31\n"), 0o644))

	w := NewFileReading(FileReadingConfig{Workdir: dir}, nil, nil, nil)
	state := uploadState(message.Attachment{Filename: "ages.csv"})
	out, err := w.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, out.LastMessage().Text(), "Dataset `ages.csv` loaded: 1 rows x 2 columns.")
}

func TestFileReadingPropagatesReadFailures(t *testing.T) {
	w := NewFileReading(FileReadingConfig{}, nil, nil, nil)
	state := uploadState(message.Attachment{Filename: "gone.csv", URI: "file:///nowhere/gone.csv"})

	_, err := w.Run(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read gone.csv")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileReadingSurvivesIndexingFailures(t *testing.T) {
	path := writeCSV(t, "sales.csv", "region,amount\nnorth,10\n")
	retr := &stubRetriever{indexErr: fmt.Errorf("store offline")}
	w := NewFileReading(FileReadingConfig{}, nil, retr, nil)

	out, err := w.Run(context.Background(), uploadState(message.Attachment{URI: "file://" + path}))
	require.NoError(t, err)
	assert.Equal(t, StageHeadRead, out.Stage)
	assert.Len(t, out.Messages, 2)
}

func TestFileReadingRequiresAttachments(t *testing.T) {
	w := NewFileReading(FileReadingConfig{}, nil, nil, nil)
	state := &AgentState{Messages: []*message.Message{message.NewUserMessage("no files here")}}

	_, err := w.Run(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without attachments")
}

func analysisState(question string) *AgentState {
	entry := message.NewUserMessage(question)
	return &AgentState{
		Messages:     []*message.Message{entry},
		ParentID:     "turn-2",
		Date:         "2026-08-22",
		EntryMessage: entry,
	}
}

func TestDataAnalysisAppendsReplyWithColumnContext(t *testing.T) {
	model := &recordingModel{reply: "The mean amount is 20."}
	retr := &stubRetriever{context: "\nHere are some extra column information\n"}
	w := NewDataAnalysis(DataAnalysisConfig{Locale: "en"}, model, retr, nil, nil, nil)

	out, err := w.Run(context.Background(), analysisState("what is the mean amount?"))
	require.NoError(t, err)

	require.Len(t, out.Messages, 2)
	assert.Equal(t, "The mean amount is 20.", out.LastMessage().Text())
	assert.Equal(t, "turn-2", out.LastMessage().Meta.ParentID)
	assert.Equal(t, "what is the mean amount?", retr.lastQuery)

	require.Len(t, model.inputs, 1)
	conversation := model.inputs[0]
	require.NotEmpty(t, conversation)
	system := conversation[0]
	assert.Equal(t, message.RoleSystem, system.Role)
	assert.Contains(t, system.Text(), "data analyst")
	assert.Contains(t, system.Text(), "Today is 2026-08-22.")
	assert.Contains(t, system.Text(), "en locale")
	assert.Contains(t, system.Text(), "extra column information")
	assert.Equal(t, "what is the mean amount?", conversation[len(conversation)-1].Text())
}

func TestDataAnalysisDegradesWithoutColumnContext(t *testing.T) {
	model := &recordingModel{reply: "I cannot see any dataset yet."}
	retr := &stubRetriever{queryErr: fmt.Errorf("index unavailable")}
	w := NewDataAnalysis(DataAnalysisConfig{}, model, retr, nil, nil, nil)

	out, err := w.Run(context.Background(), analysisState("describe the data"))
	require.NoError(t, err)
	assert.Len(t, out.Messages, 2)
	assert.NotContains(t, model.inputs[0][0].Text(), "extra column information")
}

func TestDataAnalysisScansAndExecutesGeneratedCode(t *testing.T) {
	reply := "Computing now.\n```python\ndf[\"amount\"].mean()\n```"
	model := &recordingModel{reply: reply}
	adapter := safety.NewAdapter(&verdictScanner{verdict: &safety.Verdict{
		Insecure:  true,
		Treatment: safety.TreatmentWarn,
		Issues:    []safety.Issue{{Description: "eval-like call", Severity: "medium", Line: 1}},
	}})
	exec := &stubExecutor{output: "20.0"}
	w := NewDataAnalysis(DataAnalysisConfig{}, model, nil, adapter, exec, nil)

	out, err := w.Run(context.Background(), analysisState("mean?"))
	require.NoError(t, err)

	require.Len(t, out.Messages, 4)
	assert.Equal(t, message.RoleAssistant, out.Messages[1].Role)

	report := out.Messages[2]
	assert.Equal(t, message.RoleSystem, report.Role)
	assert.Contains(t, report.Text(), "## Security Report for Code Snippet")
	assert.Contains(t, report.Text(), "Warning: The generated snippet contains insecure code.")

	result := out.Messages[3]
	assert.Equal(t, message.RoleTool, result.Role)
	assert.Equal(t, "20.0", result.Text())
	assert.Equal(t, 1, exec.calls)
	assert.Equal(t, `df["amount"].mean()`, exec.lastCode)
}

func TestDataAnalysisBlocksInsecureCode(t *testing.T) {
	reply := "```python\nimport os; os.system(\"rm -rf /\")\n```"
	model := &recordingModel{reply: reply}
	adapter := safety.NewAdapter(&verdictScanner{verdict: &safety.Verdict{
		Insecure:  true,
		Treatment: safety.TreatmentBlock,
		Issues:    []safety.Issue{{Description: "shell escape", Severity: "critical", Line: 1}},
	}})
	exec := &stubExecutor{output: "never"}
	w := NewDataAnalysis(DataAnalysisConfig{}, model, nil, adapter, exec, nil)

	out, err := w.Run(context.Background(), analysisState("clean up"))
	require.NoError(t, err)

	require.Len(t, out.Messages, 3)
	assert.Contains(t, out.Messages[2].Text(), "blocking the code")
	assert.Equal(t, 0, exec.calls, "blocked code must not execute")
}

func TestDataAnalysisWithoutOptionalCollaborators(t *testing.T) {
	reply := "```python\nprint(1)\n```"
	model := &recordingModel{reply: reply}
	w := NewDataAnalysis(DataAnalysisConfig{}, model, nil, nil, nil, nil)

	out, err := w.Run(context.Background(), analysisState("run it"))
	require.NoError(t, err)
	assert.Len(t, out.Messages, 2, "no scanner and no executor means only the reply is appended")
}

func TestTruncateHistoryKeepsNewestWithinBudget(t *testing.T) {
	history := []*message.Message{
		message.NewUserMessage(strings.Repeat("old words fill the context ", 50)),
		message.NewAssistantMessage("short"),
		message.NewUserMessage("newest question"),
	}

	kept := truncateHistory(history, 20)
	require.NotEmpty(t, kept)
	assert.Less(t, len(kept), len(history))
	assert.Equal(t, "newest question", kept[len(kept)-1].Text())

	assert.Len(t, truncateHistory(history, 0), 3, "zero budget disables truncation")
}

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"python fence", "before\n```python\nx = 1\n```\nafter", "x = 1"},
		{"bare fence", "```\ny = 2\n```", "y = 2"},
		{"no fence", "just prose", ""},
		{"multiline", "```py\na = 1\nb = 2\n```", "a = 1\nb = 2"},
		{"first of two", "```python\nfirst\n```\n```python\nsecond\n```", "first"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractCode(tc.text))
		})
	}
}
