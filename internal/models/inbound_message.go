package models

import (
	"strings"
	"time"
)

// InboundMessage is a parsed message pulled from an IMAP inbox, before any
// routing decision. It is not persisted; accepted messages become Reply rows.
type InboundMessage struct {
	AccountEmail   string
	MessageID      string
	ConversationID string
	FromEmail      string
	FromName       string
	Subject        string
	Body           string
	ImapUID        uint32
	ReceivedAt     time.Time

	// Cheap pre-signal only. The analyzer is authoritative.
	PrecheckHasPhone   bool
	PrecheckHasAddress bool
}

// IsReplyToOutreach reports whether the message threads back to an earlier
// message or carries a reply/forward subject prefix.
func (m *InboundMessage) IsReplyToOutreach() bool {
	if m.ConversationID != "" && m.ConversationID != m.MessageID {
		return true
	}
	subject := strings.ToLower(strings.TrimSpace(m.Subject))
	return strings.HasPrefix(subject, "re:") || strings.HasPrefix(subject, "fwd:")
}
