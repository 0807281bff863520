package interfaces

import (
	"context"
)

// DispatchService sends due follow-ups with at-most-once delivery.
type DispatchService interface {
	// DispatchDue claims due entries from the schedule index, falling back
	// to the thread store, and sends the next stage for each eligible thread.
	DispatchDue(ctx context.Context) error
	// SendFollowup sends the given stage for the thread identified by its
	// provider message ID, guarding eligibility and the delivery dedup key.
	SendFollowup(ctx context.Context, messageID string, stage int) error
	// CancelPending clears any scheduled follow-up and delivery dedup keys
	// for the thread identified by messageID.
	CancelPending(ctx context.Context, messageID string) error
}
