package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/tracing"
	"github.com/outreachloop/followup/internal/utils"
)

type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *gorm.DB) interfaces.ThreadRepository {
	return &threadRepository{
		db: db,
	}
}

// Insert creates the thread row, skipping silently when the message ID is
// already tracked.
func (r *threadRepository) Insert(ctx context.Context, thread *models.Thread) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.Insert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if thread == nil {
		err := errors.New("thread cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	if thread.MessageID == "" {
		err := errors.New("thread message ID cannot be empty")
		tracing.TraceErr(span, err)
		return "", err
	}
	span.SetTag("message_id", thread.MessageID)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(thread)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		span.LogKV("result", "duplicate message id, insert skipped")
		return "", nil
	}

	return thread.ID, nil
}

func (r *threadRepository) GetByID(ctx context.Context, id string) (*models.Thread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	if id == "" {
		err := errors.New("thread ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var thread models.Thread
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &thread, nil
}

func (r *threadRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Thread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("message_id", messageID)

	if messageID == "" {
		err := errors.New("message ID cannot be empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	var thread models.Thread
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &thread, nil
}

func (r *threadRepository) Update(ctx context.Context, thread *models.Thread) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if thread == nil || thread.ID == "" {
		err := errors.New("thread with ID is required")
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, thread.ID)

	thread.UpdatedAt = utils.Now()
	err := r.db.WithContext(ctx).Save(thread).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

// ApplyDecision moves the thread to the decided status and stage and records
// the transition in the audit log atomically.
func (r *threadRepository) ApplyDecision(ctx context.Context, threadID string, toStatus enum.ThreadStatus, stopReason enum.StopReason, toStage int, reason string, replyID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.ApplyDecision")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, threadID)
	span.SetTag("to_status", string(toStatus))

	if threadID == "" {
		err := errors.New("thread ID cannot be empty")
		tracing.TraceErr(span, err)
		return err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.Thread
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", threadID).First(&thread).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrThreadNotFound
			}
			return err
		}

		transition := models.StageTransition{
			ThreadID:   threadID,
			FromStage:  thread.CurrentStage,
			ToStage:    toStage,
			FromStatus: string(thread.Status),
			ToStatus:   string(toStatus),
			Reason:     reason,
			ReplyID:    replyID,
		}

		thread.Status = toStatus
		thread.StopReason = stopReason
		thread.CurrentStage = toStage
		thread.UpdatedAt = utils.Now()
		if toStatus != enum.ThreadStatusFollowupActive {
			thread.NextFollowupAt = nil
		}

		if err := tx.Save(&thread).Error; err != nil {
			return err
		}
		return tx.Create(&transition).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (r *threadRepository) ScheduleNextFollowup(ctx context.Context, threadID string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.ScheduleNextFollowup")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, threadID)
	span.SetTag("next_followup_at", at.Format(time.RFC3339))

	result := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("id = ?", threadID).
		Updates(map[string]interface{}{
			"next_followup_at": at.UTC(),
			"updated_at":       utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrThreadNotFound
	}

	return nil
}

func (r *threadRepository) ClearNextFollowup(ctx context.Context, threadID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.ClearNextFollowup")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, threadID)

	result := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("id = ?", threadID).
		Updates(map[string]interface{}{
			"next_followup_at": nil,
			"updated_at":       utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	return nil
}

// RecordFollowupSent commits the send outcome in one transaction so the
// counters, the stage and the send log can never drift apart.
func (r *threadRepository) RecordFollowupSent(ctx context.Context, threadID string, stage int, template string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.RecordFollowupSent")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, threadID)
	span.SetTag("stage", stage)

	now := utils.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.Thread
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", threadID).First(&thread).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrThreadNotFound
			}
			return err
		}

		fromStage := thread.CurrentStage
		thread.FollowupsSent++
		thread.CurrentStage = stage
		thread.LastFollowupSentAt = &now
		thread.NextFollowupAt = nil
		thread.UpdatedAt = now

		if err := tx.Save(&thread).Error; err != nil {
			return err
		}

		sendLog := models.FollowupSend{
			ThreadID: threadID,
			Stage:    stage,
			Template: template,
			Success:  true,
			SentAt:   now,
		}
		if err := tx.Create(&sendLog).Error; err != nil {
			return err
		}

		if fromStage != stage {
			transition := models.StageTransition{
				ThreadID:   threadID,
				FromStage:  fromStage,
				ToStage:    stage,
				FromStatus: string(thread.Status),
				ToStatus:   string(thread.Status),
				Reason:     "followup sent",
			}
			return tx.Create(&transition).Error
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (r *threadRepository) RecordFollowupFailure(ctx context.Context, threadID string, stage int, sendErr string) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.RecordFollowupFailure")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, threadID)
	span.SetTag("stage", stage)

	var failedSends int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.Thread
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", threadID).First(&thread).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrThreadNotFound
			}
			return err
		}

		thread.FailedSends++
		thread.UpdatedAt = utils.Now()
		failedSends = thread.FailedSends

		if err := tx.Save(&thread).Error; err != nil {
			return err
		}

		sendLog := models.FollowupSend{
			ThreadID:  threadID,
			Stage:     stage,
			Success:   false,
			ErrorText: sendErr,
			SentAt:    utils.Now(),
		}
		return tx.Create(&sendLog).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	return failedSends, nil
}

func (r *threadRepository) GetThreadsForScheduleSync(ctx context.Context) ([]*models.Thread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.GetThreadsForScheduleSync")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var threads []*models.Thread
	err := r.db.WithContext(ctx).
		Where("status = ?", enum.ThreadStatusFollowupActive).
		Where("stop_reason = ''").
		Where("next_followup_at IS NOT NULL").
		Order("next_followup_at asc").
		Find(&threads).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("result.count", len(threads))

	return threads, nil
}

func (r *threadRepository) GetThreadsDueForFollowup(ctx context.Context, asOf time.Time) ([]*models.Thread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.GetThreadsDueForFollowup")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var threads []*models.Thread
	err := r.db.WithContext(ctx).
		Where("status = ?", enum.ThreadStatusFollowupActive).
		Where("stop_reason = ''").
		Where("failed_sends < ?", 3).
		Where("next_followup_at IS NOT NULL AND next_followup_at <= ?", asOf.UTC()).
		Order("next_followup_at asc").
		Find(&threads).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("result.count", len(threads))

	return threads, nil
}
