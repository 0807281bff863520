package mailbox

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jaytaylor/html2text"
	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/outreachloop/followup/internal/contact"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/utils"
)

var quoteMarkerRe = regexp.MustCompile(`(?mi)^On .{5,200} wrote:\s*$`)

// parseMessage turns a fetched IMAP message into an InboundMessage. Returns
// nil for messages that carry no usable body after cleaning.
func (s *mailboxService) parseMessage(accountEmail string, msg *imap.Message) (*models.InboundMessage, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}

	section := &imap.BodySectionName{}
	literal := msg.GetBody(section)
	if literal == nil {
		return nil, errors.New("message has no body section")
	}

	envelope, err := enmime.ReadEnvelope(literal)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse message")
	}

	messageID := utils.TrimAngleBrackets(envelope.GetHeader("Message-ID"))
	if messageID == "" && msg.Envelope != nil {
		messageID = utils.TrimAngleBrackets(msg.Envelope.MessageId)
	}
	if messageID == "" {
		return nil, errors.New("message has no Message-ID")
	}

	body := envelope.Text
	if strings.TrimSpace(body) == "" && envelope.HTML != "" {
		body, err = html2text.FromString(envelope.HTML, html2text.Options{TextOnly: true})
		if err != nil {
			s.log.Warnf("html conversion failed for %s: %v", messageID, err)
			body = ""
		}
	}
	body = stripQuotedText(body)
	if strings.TrimSpace(body) == "" {
		s.countEmptyBody(accountEmail)
		s.log.Warnf("dropping message %s with empty body after cleaning", messageID)
		return nil, nil
	}

	fromEmail, fromName := parseFrom(envelope.GetHeader("From"))

	receivedAt := time.Now().UTC()
	if msg.Envelope != nil && !msg.Envelope.Date.IsZero() {
		receivedAt = msg.Envelope.Date.UTC()
	} else if date, err := mail.ParseDate(envelope.GetHeader("Date")); err == nil {
		receivedAt = date.UTC()
	}

	inbound := &models.InboundMessage{
		AccountEmail:   accountEmail,
		MessageID:      messageID,
		ConversationID: conversationID(envelope, messageID),
		FromEmail:      fromEmail,
		FromName:       fromName,
		Subject:        envelope.GetHeader("Subject"),
		Body:           body,
		ImapUID:        msg.Uid,
		ReceivedAt:     receivedAt,
	}

	inbound.PrecheckHasPhone = len(contact.ExtractPhoneNumbers(body)) > 0
	inbound.PrecheckHasAddress = contact.HasAddressSignal(body)

	return inbound, nil
}

// conversationID resolves which earlier message this one threads back to.
// Falls back to the message's own ID when it starts a new conversation.
func conversationID(envelope *enmime.Envelope, messageID string) string {
	if inReplyTo := utils.TrimAngleBrackets(envelope.GetHeader("In-Reply-To")); inReplyTo != "" {
		return inReplyTo
	}
	if refs := strings.Fields(envelope.GetHeader("References")); len(refs) > 0 {
		return utils.TrimAngleBrackets(refs[0])
	}
	return messageID
}

func parseFrom(from string) (email, name string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}
	if open := strings.LastIndex(from, "<"); open >= 0 {
		if close := strings.LastIndex(from, ">"); close > open {
			email = strings.TrimSpace(from[open+1 : close])
			name = strings.Trim(strings.TrimSpace(from[:open]), `"`)
			return email, name
		}
	}
	return from, ""
}

// stripQuotedText removes quoted history and reply markers so only the
// creator's own words reach the classifier.
func stripQuotedText(body string) string {
	if loc := quoteMarkerRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}

	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}
