package message

import (
	"strings"
	"time"

	"tabula/internal/utils/id"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind tags the variants of structured message content.
type PartKind string

const (
	// PartKindText is a structured text part. Filters always keep it.
	PartKindText PartKind = "text"
	// PartKindImageURL references an image by URL, e.g. a rendered chart.
	PartKindImageURL PartKind = "image_url"
)

// Part is one element of structured message content. A Part with an empty
// Kind is a bare text fragment; bare fragments survive every content filter.
type Part struct {
	Kind PartKind `json:"kind,omitempty"`
	// Text carries the payload for bare fragments and text parts.
	Text string `json:"text,omitempty"`
	// ImageURL locates the payload for image_url parts.
	ImageURL string `json:"image_url,omitempty"`
	// Extra carries provider-specific payload fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// TextPart builds a structured text part.
func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// ImagePart builds an image_url part.
func ImagePart(url string) Part {
	return Part{Kind: PartKindImageURL, ImageURL: url}
}

// Attachment describes a dataset file referenced by a user message.
type Attachment struct {
	// Filename is the name the file was uploaded under, relative to the
	// session workspace, e.g. `sales.csv`.
	Filename string `json:"filename"`
	// URI optionally locates the file as a file-scheme URI. When set it
	// wins over Filename during resolution.
	URI string `json:"uri,omitempty"`
	// MediaType is the MIME type when known (e.g. text/csv).
	MediaType string `json:"media_type,omitempty"`
	// Size is the payload size in bytes, zero when unknown.
	Size int64 `json:"size,omitempty"`
}

// Meta carries the structured metadata a message travels with.
type Meta struct {
	// Attachments lists dataset files delivered alongside the message.
	// A user message with attachments routes the turn into file reading.
	Attachments []Attachment `json:"attachments,omitempty"`
	// ParentID groups messages produced while serving one entry message.
	ParentID string `json:"parent_id,omitempty"`
}

// Message is the unified message implementation.
type Message struct {
	ID   string `json:"id,omitempty"`
	Role Role   `json:"role"`
	// Content is the plain-text body, authoritative while Parts is nil.
	Content string `json:"content,omitempty"`
	// Parts is the structured body. nil means the message is plain text.
	Parts     []Part    `json:"parts,omitempty"`
	Meta      Meta      `json:"meta,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a new plain-text message.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        id.NewMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewStructuredMessage creates a message whose body is a list of parts.
func NewStructuredMessage(role Role, parts ...Part) *Message {
	m := NewMessage(role, "")
	if parts == nil {
		parts = []Part{}
	}
	m.Parts = parts
	return m
}

// WithAttachments sets the attachment metadata and returns the message.
func (m *Message) WithAttachments(attachments ...Attachment) *Message {
	m.Meta.Attachments = attachments
	return m
}

// WithParentID sets the parent group id and returns the message.
func (m *Message) WithParentID(parentID string) *Message {
	m.Meta.ParentID = parentID
	return m
}

// HasAttachments reports whether the message carries at least one attachment.
func (m *Message) HasAttachments() bool {
	return m != nil && len(m.Meta.Attachments) > 0
}

// Text flattens the message body to plain text. For structured content it
// joins bare fragments and text parts in order; other part kinds contribute
// nothing.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	if m.Parts == nil {
		return m.Content
	}
	var b strings.Builder
	for _, part := range m.Parts {
		if part.Kind == "" || part.Kind == PartKindText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// Clone returns a deep copy sharing no mutable state with the original.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, part := range m.Parts {
			out.Parts[i] = part.clone()
		}
	}
	if m.Meta.Attachments != nil {
		out.Meta.Attachments = append([]Attachment(nil), m.Meta.Attachments...)
	}
	return &out
}

func (p Part) clone() Part {
	out := p
	if p.Extra != nil {
		out.Extra = cloneMap(p.Extra)
	}
	return out
}

// cloneMap deep-copies JSON-shaped values (maps, slices, scalars).
func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
