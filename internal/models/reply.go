package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/outreachloop/followup/internal/utils"
)

// Reply is one inbound message accepted into the pipeline, appended under its
// parent Thread. ReplyToStage is nil for the first reply and carries the stage
// of our follow-up the creator was responding to otherwise.
type Reply struct {
	ID           string `gorm:"column:id;type:varchar(50);primaryKey"`
	ThreadID     string `gorm:"column:thread_id;type:varchar(50);index;not null"`
	MessageID    string `gorm:"column:message_id;uniqueIndex;type:varchar(255);not null"`
	ReplyToStage *int   `gorm:"column:reply_to_stage"`

	Subject string `gorm:"column:subject;type:varchar(1000)"`
	Body    string `gorm:"column:body;type:text"`

	Intent       string         `gorm:"column:intent;type:varchar(50)"`
	PhoneNumbers pq.StringArray `gorm:"column:phone_numbers;type:text[]"`
	HasAddress   bool           `gorm:"column:has_address;default:false"`
	AddressText  string         `gorm:"column:address_text;type:text"`

	ReceivedAt time.Time `gorm:"column:received_at;type:timestamp;index"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamp"`
}

func (Reply) TableName() string {
	return "replies"
}

func (r *Reply) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("reply", 16)
	}
	r.CreatedAt = utils.Now()
	return nil
}
