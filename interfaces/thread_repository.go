package interfaces

import (
	"context"
	"time"

	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/models"
)

// ThreadRepository is the durable source of truth for conversation threads
// and their follow-up lifecycle.
type ThreadRepository interface {
	// Insert creates the thread row. When a row with the same message ID
	// already exists the insert is skipped and an empty ID is returned.
	Insert(ctx context.Context, thread *models.Thread) (string, error)
	GetByID(ctx context.Context, id string) (*models.Thread, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.Thread, error)
	Update(ctx context.Context, thread *models.Thread) error

	// ApplyDecision updates status, stop reason and stage on a thread and
	// appends the matching stage transition row in one transaction.
	ApplyDecision(ctx context.Context, threadID string, toStatus enum.ThreadStatus, stopReason enum.StopReason, toStage int, reason string, replyID string) error

	// ScheduleNextFollowup sets next_followup_at.
	ScheduleNextFollowup(ctx context.Context, threadID string, at time.Time) error
	// ClearNextFollowup removes any pending schedule from the thread.
	ClearNextFollowup(ctx context.Context, threadID string) error

	// RecordFollowupSent marks a successful send: bumps followups_sent,
	// advances current_stage, stamps last_followup_sent_at and appends the
	// send log row, all in one transaction.
	RecordFollowupSent(ctx context.Context, threadID string, stage int, template string) error
	// RecordFollowupFailure appends a failed send log row and bumps
	// failed_sends, returning the new failure count.
	RecordFollowupFailure(ctx context.Context, threadID string, stage int, sendErr string) (int, error)

	// GetThreadsForScheduleSync returns active threads with a pending
	// next_followup_at, used to rebuild the schedule index.
	GetThreadsForScheduleSync(ctx context.Context) ([]*models.Thread, error)
	// GetThreadsDueForFollowup returns active threads whose
	// next_followup_at is at or before the given time.
	GetThreadsDueForFollowup(ctx context.Context, asOf time.Time) ([]*models.Thread, error)
}
