package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/outreachloop/followup/internal/utils"
)

// FollowupSend is one send attempt, success or explicit failure, appended
// under its parent Thread.
type FollowupSend struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey"`
	ThreadID string `gorm:"column:thread_id;type:varchar(50);index;not null"`
	Stage    int    `gorm:"column:stage;not null"`

	Template  string `gorm:"column:template;type:text"`
	Success   bool   `gorm:"column:success;default:false"`
	ErrorText string `gorm:"column:error_text;type:text"`

	SentAt    time.Time `gorm:"column:sent_at;type:timestamp;index"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp"`
}

func (FollowupSend) TableName() string {
	return "followup_sends"
}

func (f *FollowupSend) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = utils.GenerateNanoIDWithPrefix("fusend", 16)
	}
	f.CreatedAt = utils.Now()
	return nil
}
