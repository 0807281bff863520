package utils

import (
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateMessageID creates a unique RFC 5322 message ID for outbound mail.
func GenerateMessageID(domain string) string {
	alphabet := "abcdefghijklmnopqrstuvwxyz0123456789"
	id, err := gonanoid.Generate(alphabet, 12)
	if err != nil {
		panic(err)
	}
	timestamp := time.Now().UnixMicro()
	return fmt.Sprintf("<%d.%s@%s>", timestamp, id, domain)
}

// EnsureAngleBrackets normalizes a message ID for use in threading headers.
func EnsureAngleBrackets(messageID string) string {
	trimmed := strings.Trim(messageID, "<>")
	if trimmed == "" {
		return ""
	}
	return "<" + trimmed + ">"
}

// TrimAngleBrackets normalizes a message ID for storage and key lookups.
func TrimAngleBrackets(messageID string) string {
	return strings.Trim(strings.TrimSpace(messageID), "<>")
}

// EnsureReplySubject prefixes a subject with "Re: " unless it already carries one.
func EnsureReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	if subject == "" {
		return "Re:"
	}
	return "Re: " + subject
}

// EmailDomain extracts the domain part of an address, or "" if malformed.
func EmailDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return address[at+1:]
}
