package interfaces

import (
	"context"

	"github.com/outreachloop/followup/internal/models"
)

type ReplyRepository interface {
	// Create inserts a reply row. Duplicate message IDs are skipped and
	// return an empty ID.
	Create(ctx context.Context, reply *models.Reply) (string, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.Reply, error)
	ListByThread(ctx context.Context, threadID string) ([]*models.Reply, error)
}
