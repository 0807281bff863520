package smtp

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/utils"
)

// buildMessage renders an outbound follow-up as a plain-text RFC 5322
// message with reply threading headers.
func buildMessage(message *interfaces.OutboundMessage, messageID string, sentAt time.Time) *bytes.Buffer {
	headers := map[string]string{
		"From":                      message.FromEmail,
		"To":                        message.ToEmail,
		"Subject":                   encodeSubject(utils.EnsureReplySubject(message.Subject)),
		"Message-ID":                utils.EnsureAngleBrackets(messageID),
		"Date":                      sentAt.Format(time.RFC1123Z),
		"MIME-Version":              "1.0",
		"Content-Type":              `text/plain; charset="UTF-8"`,
		"Content-Transfer-Encoding": "quoted-printable",
	}

	if message.InReplyTo != "" {
		headers["In-Reply-To"] = utils.EnsureAngleBrackets(message.InReplyTo)
	}
	if len(message.References) > 0 {
		refs := make([]string, 0, len(message.References))
		for _, ref := range message.References {
			refs = append(refs, utils.EnsureAngleBrackets(ref))
		}
		headers["References"] = strings.Join(refs, " ")
	}

	buffer := bytes.NewBuffer(nil)
	for _, key := range headerOrder {
		if value, ok := headers[key]; ok {
			fmt.Fprintf(buffer, "%s: %s\r\n", key, value)
		}
	}
	buffer.WriteString("\r\n")
	qp := quotedprintable.NewWriter(buffer)
	_, _ = qp.Write([]byte(message.Body))
	_ = qp.Close()
	buffer.WriteString("\r\n")

	return buffer
}

var headerOrder = []string{
	"From", "To", "Subject", "Message-ID", "In-Reply-To", "References",
	"Date", "MIME-Version", "Content-Type", "Content-Transfer-Encoding",
}

func encodeSubject(subject string) string {
	return mime.QEncoding.Encode("UTF-8", subject)
}
