package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/tracing"
)

type replyRepository struct {
	db *gorm.DB
}

func NewReplyRepository(db *gorm.DB) interfaces.ReplyRepository {
	return &replyRepository{
		db: db,
	}
}

func (r *replyRepository) Create(ctx context.Context, reply *models.Reply) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "replyRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if reply == nil {
		err := errors.New("reply cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	if reply.ThreadID == "" || reply.MessageID == "" {
		err := errors.New("reply thread ID and message ID are required")
		tracing.TraceErr(span, err)
		return "", err
	}
	span.SetTag("message_id", reply.MessageID)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(reply)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		span.LogKV("result", "duplicate message id, insert skipped")
		return "", nil
	}

	return reply.ID, nil
}

func (r *replyRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Reply, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "replyRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("message_id", messageID)

	var reply models.Reply
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&reply).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReplyNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &reply, nil
}

func (r *replyRepository) ListByThread(ctx context.Context, threadID string) ([]*models.Reply, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "replyRepository.ListByThread")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, threadID)

	var replies []*models.Reply
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("received_at asc").
		Find(&replies).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return replies, nil
}
