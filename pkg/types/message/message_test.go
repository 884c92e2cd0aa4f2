package message

import (
	"strings"
	"testing"
)

func TestNewMessageAssignsIDAndTimestamp(t *testing.T) {
	msg := NewUserMessage("show me the trend")
	if msg.ID == "" {
		t.Fatal("expected generated message id")
	}
	if !strings.HasPrefix(msg.ID, "msg-") {
		t.Fatalf("expected msg- prefix, got %s", msg.ID)
	}
	if msg.Role != RoleUser {
		t.Fatalf("expected user role, got %s", msg.Role)
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestTextFlattensStructuredContent(t *testing.T) {
	msg := NewStructuredMessage(RoleAssistant,
		Part{Text: "raw fragment "},
		TextPart("typed text"),
		ImagePart("attachment://chart.png"),
	)
	if got := msg.Text(); got != "raw fragment typed text" {
		t.Fatalf("unexpected flattened text: %q", got)
	}

	plain := NewAssistantMessage("plain body")
	if got := plain.Text(); got != "plain body" {
		t.Fatalf("unexpected plain text: %q", got)
	}
}

func TestHasAttachments(t *testing.T) {
	msg := NewUserMessage("here is the data")
	if msg.HasAttachments() {
		t.Fatal("message without attachments should report false")
	}
	msg.WithAttachments(Attachment{Filename: "sales.csv"})
	if !msg.HasAttachments() {
		t.Fatal("message with attachments should report true")
	}
	var nilMsg *Message
	if nilMsg.HasAttachments() {
		t.Fatal("nil message should report false")
	}
}

func TestCloneSharesNoMutableState(t *testing.T) {
	msg := NewStructuredMessage(RoleUser,
		TextPart("hello"),
		Part{Kind: PartKindImageURL, ImageURL: "u", Extra: map[string]any{
			"detail": "low",
			"nested": map[string]any{"a": 1},
		}},
	)
	msg.WithAttachments(Attachment{Filename: "a.csv"})

	clone := msg.Clone()
	clone.Parts[0].Text = "changed"
	clone.Parts[1].Extra["detail"] = "high"
	clone.Parts[1].Extra["nested"].(map[string]any)["a"] = 2
	clone.Meta.Attachments[0].Filename = "b.csv"

	if msg.Parts[0].Text != "hello" {
		t.Fatal("clone mutation leaked into original part text")
	}
	if msg.Parts[1].Extra["detail"] != "low" {
		t.Fatal("clone mutation leaked into original extra map")
	}
	if msg.Parts[1].Extra["nested"].(map[string]any)["a"] != 1 {
		t.Fatal("clone mutation leaked into nested extra value")
	}
	if msg.Meta.Attachments[0].Filename != "a.csv" {
		t.Fatal("clone mutation leaked into original attachments")
	}
}
