package mailbox

import (
	"context"
	"net/textproto"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/internal/tracing"
	"github.com/outreachloop/followup/internal/utils"
)

// MarkRead sets the \Seen flag for the message in the owning account.
func (s *mailboxService) MarkRead(ctx context.Context, accountEmail, messageID string) error {
	return s.storeSeenFlag(ctx, accountEmail, messageID, true)
}

// MarkUnread clears the \Seen flag so the message stays visible to a human.
func (s *mailboxService) MarkUnread(ctx context.Context, accountEmail, messageID string) error {
	return s.storeSeenFlag(ctx, accountEmail, messageID, false)
}

func (s *mailboxService) storeSeenFlag(ctx context.Context, accountEmail, messageID string, seen bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxService.storeSeenFlag")
	defer span.Finish()
	tracing.TagComponentMailbox(span)
	span.SetTag("account", accountEmail)
	span.SetTag("message_id", messageID)
	span.SetTag("seen", seen)

	account, found := s.accountByEmail(accountEmail)
	if !found {
		err := errors.Errorf("account %s is not configured", accountEmail)
		tracing.TraceErr(span, err)
		return err
	}

	c, err := s.getClient(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if _, err := c.Select("INBOX", false); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header = textproto.MIMEHeader{}
	criteria.Header.Set("Message-ID", utils.EnsureAngleBrackets(messageID))

	uids, err := c.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if len(uids) == 0 {
		err := errors.Errorf("message %s not found in %s", messageID, accountEmail)
		tracing.TraceErr(span, err)
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	op := imap.FormatFlagsOp(imap.AddFlags, true)
	if !seen {
		op = imap.FormatFlagsOp(imap.RemoveFlags, true)
	}

	if err := c.UidStore(seqSet, op, []interface{}{imap.SeenFlag}, nil); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *mailboxService) accountByEmail(email string) (config.MailAccountConfig, bool) {
	for _, account := range s.accounts {
		if account.Email == email {
			return account, true
		}
	}
	return config.MailAccountConfig{}, false
}
