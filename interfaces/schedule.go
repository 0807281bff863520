package interfaces

import (
	"context"
	"time"
)

// ScheduledFollowup is one due entry claimed from the schedule index,
// keyed by the thread's provider message ID.
type ScheduledFollowup struct {
	MessageID string
	DueAt     time.Time
}

// ScheduleIndexService maintains the fast-lookup index of upcoming
// follow-ups, rebuilt periodically from the thread store.
type ScheduleIndexService interface {
	Add(ctx context.Context, messageID string, dueAt time.Time) error
	Remove(ctx context.Context, messageID string) error
	Count(ctx context.Context) (int64, error)
	// DueAsOf lists entries due at or before asOf without removing them.
	DueAsOf(ctx context.Context, asOf time.Time) ([]ScheduledFollowup, error)
	// ClaimDue atomically removes and returns entries due at or before asOf,
	// so two dispatchers never pick up the same entry.
	ClaimDue(ctx context.Context, asOf time.Time) ([]ScheduledFollowup, error)
	// Sync rebuilds the index from the thread store under a short lock.
	Sync(ctx context.Context) error
}
