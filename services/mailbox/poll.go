package mailbox

import (
	"context"
	"time"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/internal/tracing"
)

const unseenLookback = 7 * 24 * time.Hour

// pollAccount runs one poll tick for one account: search unseen replies
// from the last 7 days, parse, filter, and hand off to the pipeline.
func (s *mailboxService) pollAccount(ctx context.Context, account config.MailAccountConfig) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxService.pollAccount")
	defer span.Finish()
	tracing.TagComponentMailbox(span)
	span.SetTag("account", account.Email)

	c, err := s.getClient(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		if errors.Is(err, ErrAuthFailed) {
			s.log.Errorf("auth failed for %s, skipping account this tick", account.Email)
		} else {
			s.log.Errorf("could not connect %s: %v", account.Email, err)
		}
		return
	}

	if _, err := c.Select("INBOX", false); err != nil {
		tracing.TraceErr(span, err)
		s.updateStatus(account.Email, false, err)
		return
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().UTC().Add(-unseenLookback)

	uids, err := c.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		s.updateStatus(account.Email, false, err)
		return
	}
	s.updateStatus(account.Email, true, nil)
	span.LogKV("unseen.count", len(uids))
	if len(uids) == 0 {
		return
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		imap.FetchRFC822,
	}

	messages := make(chan *imap.Message, len(uids))
	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- c.UidFetch(seqSet, items, messages)
	}()

	for msg := range messages {
		inbound, err := s.parseMessage(account.Email, msg)
		if err != nil {
			tracing.TraceErr(span, err)
			s.log.Warnf("failed to parse message uid %d for %s: %v", msg.Uid, account.Email, err)
			continue
		}
		if inbound == nil {
			continue
		}
		if !inbound.IsReplyToOutreach() {
			continue
		}
		s.handler(ctx, inbound)
	}

	if err := <-fetchDone; err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("fetch failed for %s: %v", account.Email, err)
	}
}
