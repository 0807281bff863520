package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/repository"
	"github.com/outreachloop/followup/internal/tracing"
	"github.com/outreachloop/followup/internal/utils"
)

const (
	dedupKeyTTL     = 1 * time.Hour
	maxFailedSends  = 3
	dedupKeyPattern = "followup:%s:%d"
)

type dispatchService struct {
	threadRepo    interfaces.ThreadRepository
	scheduleIndex interfaces.ScheduleIndexService
	sender        interfaces.SenderService
	redis         redis.UniversalClient
	log           logger.Logger
}

func NewDispatchService(
	threadRepo interfaces.ThreadRepository,
	scheduleIndex interfaces.ScheduleIndexService,
	sender interfaces.SenderService,
	redisClient redis.UniversalClient,
	log logger.Logger,
) interfaces.DispatchService {
	return &dispatchService{
		threadRepo:    threadRepo,
		scheduleIndex: scheduleIndex,
		sender:        sender,
		redis:         redisClient,
		log:           log,
	}
}

// DispatchDue claims everything due from the schedule index. If the index is
// unreachable or holds nothing, the thread store is queried directly; the
// index is a cache, the store is truth. Entries can vanish from the index
// between syncs (restart, failed Add after a send) without the thread losing
// its due date.
func (s *dispatchService) DispatchDue(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dispatchService.DispatchDue")
	defer span.Finish()
	tracing.TagComponentService(span)

	now := utils.Now()

	due, err := s.scheduleIndex.ClaimDue(ctx, now)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("schedule index unavailable, falling back to thread store: %v", err)
		due = nil
	}
	if len(due) == 0 {
		threads, storeErr := s.threadRepo.GetThreadsDueForFollowup(ctx, now)
		if storeErr != nil {
			tracing.TraceErr(span, storeErr)
			return storeErr
		}
		due = make([]interfaces.ScheduledFollowup, 0, len(threads))
		for _, t := range threads {
			due = append(due, interfaces.ScheduledFollowup{MessageID: t.MessageID})
		}
	}
	span.LogKV("due.count", len(due))

	var firstErr error
	for _, entry := range due {
		thread, err := s.threadRepo.GetByMessageID(ctx, entry.MessageID)
		if err != nil {
			if errors.Is(err, repository.ErrThreadNotFound) {
				s.log.Warnf("scheduled message %s has no thread, dropping", entry.MessageID)
				continue
			}
			tracing.TraceErr(span, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		stage := thread.FollowupsSent + 1
		if err := s.SendFollowup(ctx, entry.MessageID, stage); err != nil {
			tracing.TraceErr(span, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// SendFollowup delivers one stage for one thread with at-most-once
// semantics. The dedup key is installed before the send so a crash between
// send and record cannot produce a duplicate within the key's lifetime.
func (s *dispatchService) SendFollowup(ctx context.Context, messageID string, stage int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dispatchService.SendFollowup")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("message_id", messageID)
	span.SetTag("stage", stage)

	if stage < 1 || stage > maxStage {
		err := errors.Errorf("stage %d out of range", stage)
		tracing.TraceErr(span, err)
		return err
	}

	dedupKey := fmt.Sprintf(dedupKeyPattern, messageID, stage)
	exists, err := s.redis.Exists(ctx, dedupKey).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if exists > 0 {
		span.LogKV("result", "dedup key present, skipping")
		return nil
	}

	thread, err := s.threadRepo.GetByMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrThreadNotFound) {
			span.LogKV("result", "thread not found, skipping")
			return nil
		}
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, thread.ID)

	if !s.eligible(span, thread, stage) {
		return nil
	}

	installed, err := s.redis.SetNX(ctx, dedupKey, 1, dedupKeyTTL).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !installed {
		span.LogKV("result", "lost dedup race, skipping")
		return nil
	}

	template := stageTemplates[stage]
	sendErr := s.sender.Send(ctx, &interfaces.OutboundMessage{
		FromEmail:  thread.AccountEmail,
		ToEmail:    thread.CreatorEmail,
		Subject:    thread.Subject,
		Body:       template,
		InReplyTo:  thread.MessageID,
		References: []string{thread.MessageID},
	})
	if sendErr != nil {
		return s.handleSendFailure(ctx, span, thread, stage, sendErr)
	}

	if err := s.threadRepo.RecordFollowupSent(ctx, thread.ID, stage, template); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	s.log.Infof("stage %d followup sent for thread %s to %s", stage, thread.ID, thread.CreatorEmail)

	return s.scheduleNextStage(ctx, span, thread, stage)
}

// eligible applies the guard chain in order and logs the first failure.
func (s *dispatchService) eligible(span opentracing.Span, thread *models.Thread, stage int) bool {
	switch {
	case thread.Status != enum.ThreadStatusFollowupActive:
		span.LogKV("result", "thread not in followup state, skipping")
	case thread.HasStopReason():
		span.LogKV("result", "thread has stop reason, skipping")
	case thread.FailedSends >= maxFailedSends:
		span.LogKV("result", "max failed sends reached, skipping")
	case thread.FollowupsSent >= stage:
		span.LogKV("result", "stage already recorded, skipping")
	default:
		return true
	}
	return false
}

func (s *dispatchService) scheduleNextStage(ctx context.Context, span opentracing.Span, thread *models.Thread, sentStage int) error {
	delay, hasNext := nextStageDelay[sentStage]
	if !hasNext {
		// Final stage; recordFollowupSent already cleared the schedule.
		return nil
	}

	dueAt := utils.Now().Add(delay)
	if err := s.threadRepo.ScheduleNextFollowup(ctx, thread.ID, dueAt); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.scheduleIndex.Add(ctx, thread.MessageID, dueAt); err != nil {
		// The 15-minute sync will repopulate the index from the store.
		tracing.TraceErr(span, err)
		s.log.Warnf("failed to index next followup for %s: %v", thread.MessageID, err)
	}

	return nil
}

func (s *dispatchService) handleSendFailure(ctx context.Context, span opentracing.Span, thread *models.Thread, stage int, sendErr error) error {
	tracing.TraceErr(span, sendErr)
	s.log.Errorf("stage %d followup failed for thread %s: %v", stage, thread.ID, sendErr)

	failedSends, err := s.threadRepo.RecordFollowupFailure(ctx, thread.ID, stage, sendErr.Error())
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if failedSends >= maxFailedSends {
		if err := s.threadRepo.ApplyDecision(ctx, thread.ID, enum.ThreadStatusError, enum.StopReasonMaxSendFailures, thread.CurrentStage, "send failures exhausted", ""); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if err := s.scheduleIndex.Remove(ctx, thread.MessageID); err != nil {
			tracing.TraceErr(span, err)
		}
		s.log.Errorf("thread %s marked errored after %d failed sends", thread.ID, failedSends)
	}

	return sendErr
}

// CancelPending drops schedule entries and delivery dedup keys for a thread
// so stopped automation cannot fire again.
func (s *dispatchService) CancelPending(ctx context.Context, messageID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "dispatchService.CancelPending")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("message_id", messageID)

	if err := s.scheduleIndex.Remove(ctx, messageID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	keys := make([]string, 0, maxStage)
	for stage := 1; stage <= maxStage; stage++ {
		keys = append(keys, fmt.Sprintf(dedupKeyPattern, messageID, stage))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}
