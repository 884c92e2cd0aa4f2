// Package agent routes conversation turns between the file-reading and
// data-analysis workflows and carries the shared turn state through them.
package agent

import (
	"fmt"

	"tabula/pkg/types/message"
)

// Stage tracks how far dataset ingestion has progressed for a turn.
type Stage int

const (
	// StageUploaded means attachments arrived but nothing has been parsed.
	StageUploaded Stage = iota
	// StageInfoRead means tables parsed and shape/dtype info is available.
	StageInfoRead
	// StageHeadRead means head previews have been rendered into messages.
	StageHeadRead
)

func (s Stage) String() string {
	switch s {
	case StageUploaded:
		return "uploaded"
	case StageInfoRead:
		return "info_read"
	case StageHeadRead:
		return "head_read"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// AgentState is the conversation state one graph invocation reads and
// extends. Messages is append-only within a turn; the zero value is a fresh
// conversation. It round-trips through JSON for checkpointing.
type AgentState struct {
	Messages []*message.Message `json:"messages"`
	// ParentID groups every message this invocation produces.
	ParentID string `json:"parent_id,omitempty"`
	// Date is the day of the turn, in 2006-01-02 form.
	Date string `json:"date,omitempty"`
	// EntryMessage is the user message that triggered this turn.
	EntryMessage *message.Message `json:"entry_message,omitempty"`
	Stage        Stage            `json:"processing_stage"`
}

// LastMessage returns the newest message, nil for an empty conversation.
func (s *AgentState) LastMessage() *message.Message {
	if s == nil || len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// Append adds messages produced during this turn, stamping each with the
// turn's group id when it carries none.
func (s *AgentState) Append(msgs ...*message.Message) {
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.Meta.ParentID == "" && s.ParentID != "" {
			msg.Meta.ParentID = s.ParentID
		}
		s.Messages = append(s.Messages, msg)
	}
}
