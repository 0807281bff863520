package pipeline

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/repository"
	"github.com/outreachloop/followup/internal/tracing"
	"github.com/outreachloop/followup/internal/utils"
	"github.com/outreachloop/followup/services/router"
)

type pipelineService struct {
	threadRepo interfaces.ThreadRepository
	replyRepo  interfaces.ReplyRepository
	debouncer  interfaces.DebounceService
	analyzer   interfaces.AnalyzerService
	dispatcher interfaces.DispatchService
	mailbox    interfaces.MailboxService
	log        logger.Logger

	semaphore chan struct{}
	wg        sync.WaitGroup
}

func NewPipelineService(
	threadRepo interfaces.ThreadRepository,
	replyRepo interfaces.ReplyRepository,
	debouncer interfaces.DebounceService,
	analyzer interfaces.AnalyzerService,
	dispatcher interfaces.DispatchService,
	mailbox interfaces.MailboxService,
	maxWorkers int,
	log logger.Logger,
) interfaces.PipelineService {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &pipelineService{
		threadRepo: threadRepo,
		replyRepo:  replyRepo,
		debouncer:  debouncer,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		mailbox:    mailbox,
		log:        log,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Submit queues one inbound reply, blocking while all workers are busy.
func (s *pipelineService) Submit(ctx context.Context, message *models.InboundMessage) {
	select {
	case <-ctx.Done():
		return
	case s.semaphore <- struct{}{}:
	}

	s.wg.Add(1)
	go func() {
		defer func() {
			<-s.semaphore
			s.wg.Done()
		}()
		if err := s.process(ctx, message); err != nil {
			s.log.Errorf("pipeline failed for message %s: %v", message.MessageID, err)
		}
	}()
}

// Drain waits for in-flight messages, bounded by the context deadline.
func (s *pipelineService) Drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("pipeline drain deadline reached with tasks still in flight")
	}
}

func (s *pipelineService) process(ctx context.Context, message *models.InboundMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipelineService.process")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("message_id", message.MessageID)

	// The gate is keyed by conversation so two quick messages in one
	// thread cannot each open a processing run.
	if !s.debouncer.ShouldProcess(ctx, message.ConversationID, message.Body) {
		span.LogKV("result", "debounced")
		return nil
	}

	existing, err := s.threadRepo.GetByMessageID(ctx, message.MessageID)
	if err != nil && !errors.Is(err, repository.ErrThreadNotFound) {
		tracing.TraceErr(span, err)
		return err
	}

	// Terminal threads never change state again, but the visibility
	// contract still holds: delegated conversations stay unread.
	if existing != nil && existing.Status.IsTerminal() {
		span.LogKV("result", "thread already terminal")
		if existing.Status == enum.ThreadStatusDelegated {
			if err := s.mailbox.MarkUnread(ctx, existing.AccountEmail, existing.MessageID); err != nil {
				s.log.Warnf("failed to keep %s unread: %v", existing.MessageID, err)
			}
		}
		return nil
	}

	analysis, err := s.analyzer.Analyze(ctx, message)
	if err != nil {
		tracing.TraceErr(span, err)
		analysis = &models.EmailAnalysis{Intent: enum.IntentUnclear}
	}
	span.LogKV("intent", analysis.Intent.String())

	decision := router.Decide(analysis, existing)
	span.LogKV("action", decision.Action.String())

	thread := existing
	if thread == nil {
		thread, err = s.insertThread(ctx, message, analysis, decision)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}

	replyID := s.recordReply(ctx, thread, existing, message, analysis)

	if err := s.threadRepo.ApplyDecision(ctx, thread.ID, decision.ToStatus, decision.StopReason, decision.ToStage, decision.Reason, replyID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return s.executeAction(ctx, span, thread, decision)
}

// insertThread creates the thread row for a first reply. On a lost insert
// race the winner's row is loaded instead.
func (s *pipelineService) insertThread(ctx context.Context, message *models.InboundMessage, analysis *models.EmailAnalysis, decision router.Decision) (*models.Thread, error) {
	receivedAt := message.ReceivedAt
	thread := &models.Thread{
		MessageID:      message.MessageID,
		ConversationID: message.ConversationID,
		AccountEmail:   message.AccountEmail,
		CreatorEmail:   message.FromEmail,
		Subject:        message.Subject,
		Status:         enum.ThreadStatusProcessing,
		InitialIntent:  analysis.Intent.String(),
		HasContact:     analysis.HasContact(),
		ReceivedAt:     &receivedAt,
	}

	id, err := s.threadRepo.Insert(ctx, thread)
	if err != nil {
		return nil, err
	}
	if id == "" {
		// Another worker created it between lookup and insert.
		return s.threadRepo.GetByMessageID(ctx, message.MessageID)
	}

	return thread, nil
}

func (s *pipelineService) recordReply(ctx context.Context, thread *models.Thread, existing *models.Thread, message *models.InboundMessage, analysis *models.EmailAnalysis) string {
	reply := &models.Reply{
		ThreadID:     thread.ID,
		MessageID:    message.MessageID,
		Subject:      message.Subject,
		Body:         message.Body,
		Intent:       analysis.Intent.String(),
		PhoneNumbers: analysis.PhoneNumbers,
		HasAddress:   analysis.HasAddress,
		AddressText:  analysis.AddressText,
		ReceivedAt:   message.ReceivedAt,
	}
	if existing != nil && existing.CurrentStage > 0 {
		reply.ReplyToStage = utils.IntPtr(existing.CurrentStage)
	}

	replyID, err := s.replyRepo.Create(ctx, reply)
	if err != nil {
		// The reply log is an audit trail; losing one row must not stall
		// the decision.
		s.log.Warnf("failed to record reply %s: %v", message.MessageID, err)
		return ""
	}
	return replyID
}

func (s *pipelineService) executeAction(ctx context.Context, span opentracing.Span, thread *models.Thread, decision router.Decision) error {
	switch decision.Action {
	case enum.ActionSendStage1Followup:
		if err := s.mailbox.MarkRead(ctx, thread.AccountEmail, thread.MessageID); err != nil {
			tracing.TraceErr(span, err)
			s.log.Warnf("failed to mark %s read: %v", thread.MessageID, err)
		}
		return s.dispatcher.SendFollowup(ctx, thread.MessageID, 1)

	case enum.ActionDelegateToHuman:
		if err := s.mailbox.MarkUnread(ctx, thread.AccountEmail, thread.MessageID); err != nil {
			tracing.TraceErr(span, err)
			s.log.Warnf("failed to mark %s unread: %v", thread.MessageID, err)
		}
		return s.dispatcher.CancelPending(ctx, thread.MessageID)

	case enum.ActionMarkComplete:
		if err := s.mailbox.MarkRead(ctx, thread.AccountEmail, thread.MessageID); err != nil {
			tracing.TraceErr(span, err)
			s.log.Warnf("failed to mark %s read: %v", thread.MessageID, err)
		}
		return s.dispatcher.CancelPending(ctx, thread.MessageID)

	case enum.ActionSkip:
		return nil
	}

	return nil
}
