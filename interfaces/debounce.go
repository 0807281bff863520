package interfaces

import (
	"context"
)

// DebounceService suppresses duplicate and trivial replies before they
// reach classification. The window is keyed per conversation thread, not
// per message, so rapid-fire replies in one thread collapse to a single
// processing run.
type DebounceService interface {
	// ShouldProcess reports whether the message passes the trivial filter
	// and wins the dedup window for its thread.
	ShouldProcess(ctx context.Context, threadKey, body string) bool
	// MarkProcessed refreshes the dedup window for a thread regardless of
	// who holds it.
	MarkProcessed(ctx context.Context, threadKey string) error
	// ClearDebounce drops the dedup window for a thread.
	ClearDebounce(ctx context.Context, threadKey string) error
}
