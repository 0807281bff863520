package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsReplyToOutreach(t *testing.T) {
	tests := []struct {
		name    string
		message InboundMessage
		want    bool
	}{
		{
			name:    "threads back to an earlier message",
			message: InboundMessage{MessageID: "msg-1", ConversationID: "orig-1"},
			want:    true,
		},
		{
			name:    "re subject without threading headers",
			message: InboundMessage{MessageID: "msg-1", ConversationID: "msg-1", Subject: "Re: Collaboration opportunity"},
			want:    true,
		},
		{
			name:    "forwarded subject counts",
			message: InboundMessage{MessageID: "msg-1", ConversationID: "msg-1", Subject: "FWD: Collaboration opportunity"},
			want:    true,
		},
		{
			name:    "fresh inbound mail is not a reply",
			message: InboundMessage{MessageID: "msg-1", ConversationID: "msg-1", Subject: "Newsletter June"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.message.IsReplyToOutreach())
		})
	}
}
