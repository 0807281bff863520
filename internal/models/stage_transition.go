package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/outreachloop/followup/internal/utils"
)

// StageTransition is the append-only audit log of status and stage changes.
type StageTransition struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey"`
	ThreadID string `gorm:"column:thread_id;type:varchar(50);index;not null"`

	FromStage  int    `gorm:"column:from_stage"`
	ToStage    int    `gorm:"column:to_stage"`
	FromStatus string `gorm:"column:from_status;type:varchar(50)"`
	ToStatus   string `gorm:"column:to_status;type:varchar(50)"`
	Reason     string `gorm:"column:reason;type:varchar(255)"`
	ReplyID    string `gorm:"column:reply_id;type:varchar(50)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp"`
}

func (StageTransition) TableName() string {
	return "stage_transitions"
}

func (s *StageTransition) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = utils.GenerateNanoIDWithPrefix("strans", 16)
	}
	s.CreatedAt = utils.Now()
	return nil
}
