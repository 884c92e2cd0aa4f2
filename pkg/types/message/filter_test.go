package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterContentPlainTextPassesThrough(t *testing.T) {
	msg := NewUserMessage("plain body")
	got := FilterContent(msg)
	assert.Same(t, msg, got, "plain-text message must be returned unchanged")
}

func TestFilterContentAllBareFragmentsPassThrough(t *testing.T) {
	msg := NewStructuredMessage(RoleUser,
		Part{Text: "first"},
		Part{Text: "second"},
	)
	got := FilterContent(msg)
	assert.Same(t, msg, got, "all-bare parts must be returned unchanged")
}

func TestFilterContentEmptyPartsPassThrough(t *testing.T) {
	msg := NewStructuredMessage(RoleUser)
	got := FilterContent(msg)
	assert.Same(t, msg, got)
}

func TestFilterContentDropsUnkeptKinds(t *testing.T) {
	msg := NewStructuredMessage(RoleAssistant,
		Part{Text: "bare"},
		TextPart("typed"),
		ImagePart("attachment://chart.png"),
	)

	got := FilterContent(msg)
	require.NotSame(t, msg, got, "dropping a part must produce a copy")
	require.Len(t, got.Parts, 2)
	assert.Equal(t, "bare", got.Parts[0].Text)
	assert.Equal(t, PartKindText, got.Parts[1].Kind)

	// The original keeps all three parts.
	require.Len(t, msg.Parts, 3)
	assert.Equal(t, PartKindImageURL, msg.Parts[2].Kind)
}

func TestFilterContentKeepExtraKinds(t *testing.T) {
	msg := NewStructuredMessage(RoleAssistant,
		TextPart("typed"),
		ImagePart("attachment://chart.png"),
	)

	got := FilterContent(msg, PartKindImageURL)
	require.Len(t, got.Parts, 2, "explicitly kept kind must survive")
	assert.Same(t, msg, got, "nothing dropped means no copy")
}

func TestFilterContentResultIsDetached(t *testing.T) {
	msg := NewStructuredMessage(RoleAssistant,
		TextPart("typed"),
		Part{Kind: PartKindImageURL, ImageURL: "u", Extra: map[string]any{"detail": "low"}},
		ImagePart("drop-me"),
	)

	got := FilterContent(msg, PartKindImageURL)
	require.NotSame(t, msg, got)

	got.Parts[0].Text = "mutated"
	got.Parts[1].Extra["detail"] = "high"

	assert.Equal(t, "typed", msg.Parts[0].Text, "original text must be untouched")
	assert.Equal(t, "low", msg.Parts[1].Extra["detail"], "original extra must be untouched")
}

func TestFilterContentIdempotent(t *testing.T) {
	msg := NewStructuredMessage(RoleAssistant,
		Part{Text: "bare"},
		TextPart("typed"),
		ImagePart("attachment://chart.png"),
	)

	once := FilterContent(msg)
	twice := FilterContent(once)
	assert.Same(t, once, twice, "a second pass drops nothing, so no copy")
}

func TestFilterHistory(t *testing.T) {
	plain := NewUserMessage("q")
	mixed := NewStructuredMessage(RoleAssistant, TextPart("a"), ImagePart("u"))

	got := FilterHistory([]*Message{plain, mixed})
	require.Len(t, got, 2)
	assert.Same(t, plain, got[0], "untouched messages are reused")
	require.NotSame(t, mixed, got[1])
	assert.Len(t, got[1].Parts, 1)

	assert.Nil(t, FilterHistory(nil))
}
