package message

// FilterContent narrows structured message content to the given part kinds.
// Text parts and bare fragments always survive, so callers only name the
// extra kinds they want, e.g. FilterContent(msg, PartKindImageURL) before
// sending history to a vision model, or FilterContent(msg) to strip
// everything non-textual for a text-only model.
//
// The filter is copy-on-write: if no part would be dropped the message is
// returned unchanged (same pointer). Only when a structured part is actually
// dropped does the caller get a deep copy; the original message is never
// mutated.
func FilterContent(msg *Message, keep ...PartKind) *Message {
	if msg == nil || msg.Parts == nil {
		return msg
	}

	keepSet := make(map[PartKind]bool, len(keep)+1)
	keepSet[PartKindText] = true
	for _, kind := range keep {
		keepSet[kind] = true
	}

	drops := false
	for _, part := range msg.Parts {
		if part.Kind != "" && !keepSet[part.Kind] {
			drops = true
			break
		}
	}
	if !drops {
		return msg
	}

	out := msg.Clone()
	kept := out.Parts[:0]
	for _, part := range out.Parts {
		if part.Kind == "" || keepSet[part.Kind] {
			kept = append(kept, part)
		}
	}
	out.Parts = kept
	return out
}

// FilterHistory applies FilterContent to every message, reusing untouched
// messages as-is.
func FilterHistory(msgs []*Message, keep ...PartKind) []*Message {
	if msgs == nil {
		return nil
	}
	out := make([]*Message, len(msgs))
	for i, msg := range msgs {
		out[i] = FilterContent(msg, keep...)
	}
	return out
}
