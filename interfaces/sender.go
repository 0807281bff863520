package interfaces

import (
	"context"
)

// OutboundMessage is a fully addressed follow-up ready for SMTP delivery.
type OutboundMessage struct {
	FromEmail   string
	ToEmail     string
	Subject     string
	Body        string
	InReplyTo   string
	References  []string
	AccountUser string
}

// SenderService delivers follow-up emails over SMTP.
type SenderService interface {
	Send(ctx context.Context, message *OutboundMessage) error
}
