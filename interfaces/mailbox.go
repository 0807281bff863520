package interfaces

import (
	"context"
	"time"

	"github.com/outreachloop/followup/internal/models"
)

// InboundHandler receives every inbound reply accepted by the poller.
type InboundHandler func(ctx context.Context, message *models.InboundMessage)

// MailboxService polls the configured IMAP accounts for unseen replies.
type MailboxService interface {
	Start(ctx context.Context) error
	Stop() error
	SetHandler(handler InboundHandler)
	Statuses() map[string]MailboxStatus

	// MarkRead flags the message as seen in the owning mailbox.
	MarkRead(ctx context.Context, accountEmail, messageID string) error
	// MarkUnread clears the seen flag so a human picks the message up.
	MarkUnread(ctx context.Context, accountEmail, messageID string) error
}

type MailboxStatus struct {
	Connected        bool
	LastError        string
	LastChecked      time.Time
	ConsecutiveFails int
	EmptyBodyCount   int64
}
