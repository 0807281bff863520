package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/utils"
)

// Thread is the durable record of a single outreach conversation, keyed by the
// first observed reply's provider message ID. It is the source of truth for
// the follow-up state machine; the Redis schedule index is only a cache on top.
type Thread struct {
	ID             string `gorm:"column:id;type:varchar(50);primaryKey"`
	MessageID      string `gorm:"column:message_id;uniqueIndex;type:varchar(255);not null"`
	ConversationID string `gorm:"column:conversation_id;type:varchar(255);index"`
	AccountEmail   string `gorm:"column:account_email;type:varchar(255);index;not null"`
	CreatorEmail   string `gorm:"column:creator_email;type:varchar(255);not null"`
	Subject        string `gorm:"column:subject;type:varchar(1000)"`

	Status        enum.ThreadStatus `gorm:"column:status;type:varchar(50);index;not null"`
	StopReason    enum.StopReason   `gorm:"column:stop_reason;type:varchar(50);index"`
	CurrentStage  int               `gorm:"column:current_stage;default:0"`
	FollowupsSent int               `gorm:"column:followups_sent;default:0"`
	FailedSends   int               `gorm:"column:failed_sends;default:0"`

	InitialIntent string `gorm:"column:initial_intent;type:varchar(50)"`
	HasContact    bool   `gorm:"column:has_contact;default:false"`

	ReceivedAt         *time.Time `gorm:"column:received_at;type:timestamp"`
	NextFollowupAt     *time.Time `gorm:"column:next_followup_at;type:timestamp;index"`
	LastFollowupSentAt *time.Time `gorm:"column:last_followup_sent_at;type:timestamp"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp"`
}

func (Thread) TableName() string {
	return "threads"
}

func (t *Thread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("thread", 16)
	}
	t.CreatedAt = utils.Now()
	t.UpdatedAt = t.CreatedAt
	return nil
}

// HasStopReason reports whether automation has been stopped for this thread.
func (t *Thread) HasStopReason() bool {
	return t.StopReason != enum.StopReasonNone
}
