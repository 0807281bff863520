package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/repository"
)

type mockThreadRepository struct {
	mock.Mock
}

func (m *mockThreadRepository) Insert(ctx context.Context, thread *models.Thread) (string, error) {
	args := m.Called(ctx, thread)
	return args.String(0), args.Error(1)
}

func (m *mockThreadRepository) GetByID(ctx context.Context, id string) (*models.Thread, error) {
	args := m.Called(ctx, id)
	thread, _ := args.Get(0).(*models.Thread)
	return thread, args.Error(1)
}

func (m *mockThreadRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Thread, error) {
	args := m.Called(ctx, messageID)
	thread, _ := args.Get(0).(*models.Thread)
	return thread, args.Error(1)
}

func (m *mockThreadRepository) Update(ctx context.Context, thread *models.Thread) error {
	return m.Called(ctx, thread).Error(0)
}

func (m *mockThreadRepository) ApplyDecision(ctx context.Context, threadID string, toStatus enum.ThreadStatus, stopReason enum.StopReason, toStage int, reason string, replyID string) error {
	return m.Called(ctx, threadID, toStatus, stopReason, toStage, reason, replyID).Error(0)
}

func (m *mockThreadRepository) ScheduleNextFollowup(ctx context.Context, threadID string, at time.Time) error {
	return m.Called(ctx, threadID, at).Error(0)
}

func (m *mockThreadRepository) ClearNextFollowup(ctx context.Context, threadID string) error {
	return m.Called(ctx, threadID).Error(0)
}

func (m *mockThreadRepository) RecordFollowupSent(ctx context.Context, threadID string, stage int, template string) error {
	return m.Called(ctx, threadID, stage, template).Error(0)
}

func (m *mockThreadRepository) RecordFollowupFailure(ctx context.Context, threadID string, stage int, sendErr string) (int, error) {
	args := m.Called(ctx, threadID, stage, sendErr)
	return args.Int(0), args.Error(1)
}

func (m *mockThreadRepository) GetThreadsForScheduleSync(ctx context.Context) ([]*models.Thread, error) {
	args := m.Called(ctx)
	threads, _ := args.Get(0).([]*models.Thread)
	return threads, args.Error(1)
}

func (m *mockThreadRepository) GetThreadsDueForFollowup(ctx context.Context, asOf time.Time) ([]*models.Thread, error) {
	args := m.Called(ctx, asOf)
	threads, _ := args.Get(0).([]*models.Thread)
	return threads, args.Error(1)
}

type mockReplyRepository struct {
	mock.Mock
}

func (m *mockReplyRepository) Create(ctx context.Context, reply *models.Reply) (string, error) {
	args := m.Called(ctx, reply)
	return args.String(0), args.Error(1)
}

func (m *mockReplyRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Reply, error) {
	args := m.Called(ctx, messageID)
	reply, _ := args.Get(0).(*models.Reply)
	return reply, args.Error(1)
}

func (m *mockReplyRepository) ListByThread(ctx context.Context, threadID string) ([]*models.Reply, error) {
	args := m.Called(ctx, threadID)
	replies, _ := args.Get(0).([]*models.Reply)
	return replies, args.Error(1)
}

type mockDebouncer struct {
	mock.Mock
}

func (m *mockDebouncer) ShouldProcess(ctx context.Context, messageID, body string) bool {
	return m.Called(ctx, messageID, body).Bool(0)
}

func (m *mockDebouncer) MarkProcessed(ctx context.Context, messageID string) error {
	return m.Called(ctx, messageID).Error(0)
}

func (m *mockDebouncer) ClearDebounce(ctx context.Context, messageID string) error {
	return m.Called(ctx, messageID).Error(0)
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, message *models.InboundMessage) (*models.EmailAnalysis, error) {
	args := m.Called(ctx, message)
	analysis, _ := args.Get(0).(*models.EmailAnalysis)
	return analysis, args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) DispatchDue(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDispatcher) SendFollowup(ctx context.Context, messageID string, stage int) error {
	return m.Called(ctx, messageID, stage).Error(0)
}

func (m *mockDispatcher) CancelPending(ctx context.Context, messageID string) error {
	return m.Called(ctx, messageID).Error(0)
}

type mockMailbox struct {
	mock.Mock
}

func (m *mockMailbox) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockMailbox) Stop() error {
	return m.Called().Error(0)
}

func (m *mockMailbox) SetHandler(handler interfaces.InboundHandler) {
	m.Called(handler)
}

func (m *mockMailbox) Statuses() map[string]interfaces.MailboxStatus {
	args := m.Called()
	statuses, _ := args.Get(0).(map[string]interfaces.MailboxStatus)
	return statuses
}

func (m *mockMailbox) MarkRead(ctx context.Context, accountEmail, messageID string) error {
	return m.Called(ctx, accountEmail, messageID).Error(0)
}

func (m *mockMailbox) MarkUnread(ctx context.Context, accountEmail, messageID string) error {
	return m.Called(ctx, accountEmail, messageID).Error(0)
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type testEnv struct {
	threadRepo *mockThreadRepository
	replyRepo  *mockReplyRepository
	debouncer  *mockDebouncer
	analyzer   *mockAnalyzer
	dispatcher *mockDispatcher
	mailbox    *mockMailbox
	svc        *pipelineService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		threadRepo: &mockThreadRepository{},
		replyRepo:  &mockReplyRepository{},
		debouncer:  &mockDebouncer{},
		analyzer:   &mockAnalyzer{},
		dispatcher: &mockDispatcher{},
		mailbox:    &mockMailbox{},
	}
	env.svc = NewPipelineService(
		env.threadRepo, env.replyRepo, env.debouncer, env.analyzer,
		env.dispatcher, env.mailbox, 2, getLogger(),
	).(*pipelineService)
	return env
}

func inboundMessage() *models.InboundMessage {
	return &models.InboundMessage{
		AccountEmail:   "outreach@agency.com",
		MessageID:      "msg-1",
		ConversationID: "orig-1",
		FromEmail:      "creator@example.com",
		Subject:        "Re: Collaboration opportunity",
		Body:           "I'm interested, tell me more about the campaign and timelines.",
		ReceivedAt:     time.Now().UTC(),
	}
}

func TestProcess_InterestedStartsFollowups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	message := inboundMessage()

	env.debouncer.On("ShouldProcess", mock.Anything, "orig-1", message.Body).Return(true)
	env.threadRepo.On("GetByMessageID", mock.Anything, "msg-1").Return(nil, repository.ErrThreadNotFound)
	env.analyzer.On("Analyze", mock.Anything, message).Return(&models.EmailAnalysis{Intent: enum.IntentInterested}, nil)
	env.threadRepo.On("Insert", mock.Anything, mock.MatchedBy(func(th *models.Thread) bool {
		return th.MessageID == "msg-1" && th.CreatorEmail == "creator@example.com"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Thread).ID = "thread_1"
	}).Return("thread_1", nil)
	env.replyRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *models.Reply) bool {
		return r.ThreadID == "thread_1" && r.ReplyToStage == nil
	})).Return("reply_1", nil)
	env.threadRepo.On("ApplyDecision", mock.Anything, "thread_1", enum.ThreadStatusFollowupActive, enum.StopReasonNone, 1, mock.Anything, "reply_1").Return(nil)
	env.mailbox.On("MarkRead", mock.Anything, "outreach@agency.com", "msg-1").Return(nil)
	env.dispatcher.On("SendFollowup", mock.Anything, "msg-1", 1).Return(nil)

	err := env.svc.process(ctx, message)

	require.NoError(t, err)
	env.threadRepo.AssertExpectations(t)
	env.dispatcher.AssertExpectations(t)
	env.mailbox.AssertExpectations(t)
}

func TestProcess_ContactProvidedDelegates(t *testing.T) {
	env := newTestEnv(t)
	message := inboundMessage()
	message.Body = "Sure, WhatsApp me at +1 415 555 0100."

	env.debouncer.On("ShouldProcess", mock.Anything, "orig-1", message.Body).Return(true)
	env.threadRepo.On("GetByMessageID", mock.Anything, "msg-1").Return(nil, repository.ErrThreadNotFound)
	env.analyzer.On("Analyze", mock.Anything, message).Return(&models.EmailAnalysis{
		Intent:       enum.IntentContactProvided,
		PhoneNumbers: []string{"+14155550100"},
	}, nil)
	env.threadRepo.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Thread).ID = "thread_1"
	}).Return("thread_1", nil)
	env.replyRepo.On("Create", mock.Anything, mock.Anything).Return("reply_1", nil)
	env.threadRepo.On("ApplyDecision", mock.Anything, "thread_1", enum.ThreadStatusDelegated, enum.StopReasonContactProvided, 0, mock.Anything, "reply_1").Return(nil)
	env.mailbox.On("MarkUnread", mock.Anything, "outreach@agency.com", "msg-1").Return(nil)
	env.dispatcher.On("CancelPending", mock.Anything, "msg-1").Return(nil)

	err := env.svc.process(context.Background(), message)

	require.NoError(t, err)
	env.mailbox.AssertCalled(t, "MarkUnread", mock.Anything, "outreach@agency.com", "msg-1")
	env.dispatcher.AssertCalled(t, "CancelPending", mock.Anything, "msg-1")
	env.dispatcher.AssertNotCalled(t, "SendFollowup", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_DebouncedRepliesStop(t *testing.T) {
	env := newTestEnv(t)
	message := inboundMessage()

	env.debouncer.On("ShouldProcess", mock.Anything, "orig-1", message.Body).Return(false)

	err := env.svc.process(context.Background(), message)

	require.NoError(t, err)
	env.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	env.threadRepo.AssertNotCalled(t, "GetByMessageID", mock.Anything, mock.Anything)
}

func TestProcess_TerminalDelegatedStaysUnread(t *testing.T) {
	env := newTestEnv(t)
	message := inboundMessage()
	existing := &models.Thread{
		ID:           "thread_1",
		MessageID:    "msg-1",
		AccountEmail: "outreach@agency.com",
		Status:       enum.ThreadStatusDelegated,
		StopReason:   enum.StopReasonContactProvided,
	}

	env.debouncer.On("ShouldProcess", mock.Anything, "orig-1", message.Body).Return(true)
	env.threadRepo.On("GetByMessageID", mock.Anything, "msg-1").Return(existing, nil)
	env.mailbox.On("MarkUnread", mock.Anything, "outreach@agency.com", "msg-1").Return(nil)

	err := env.svc.process(context.Background(), message)

	require.NoError(t, err)
	// Terminal threads never reach classification or routing again.
	env.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	env.threadRepo.AssertNotCalled(t, "ApplyDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.mailbox.AssertCalled(t, "MarkUnread", mock.Anything, "outreach@agency.com", "msg-1")
}

func TestProcess_ReplyDuringFollowupWindowDelegates(t *testing.T) {
	env := newTestEnv(t)
	message := inboundMessage()
	message.Body = "Can you clarify the deliverables?"
	existing := &models.Thread{
		ID:           "thread_1",
		MessageID:    "msg-1",
		AccountEmail: "outreach@agency.com",
		Status:       enum.ThreadStatusFollowupActive,
		CurrentStage: 1,
	}

	env.debouncer.On("ShouldProcess", mock.Anything, "orig-1", message.Body).Return(true)
	env.threadRepo.On("GetByMessageID", mock.Anything, "msg-1").Return(existing, nil)
	env.analyzer.On("Analyze", mock.Anything, message).Return(&models.EmailAnalysis{Intent: enum.IntentClarification}, nil)
	env.replyRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *models.Reply) bool {
		return r.ReplyToStage != nil && *r.ReplyToStage == 1
	})).Return("reply_2", nil)
	env.threadRepo.On("ApplyDecision", mock.Anything, "thread_1", enum.ThreadStatusDelegated, enum.StopReasonCreatorReplied, 1, mock.Anything, "reply_2").Return(nil)
	env.mailbox.On("MarkUnread", mock.Anything, "outreach@agency.com", "msg-1").Return(nil)
	env.dispatcher.On("CancelPending", mock.Anything, "msg-1").Return(nil)

	err := env.svc.process(context.Background(), message)

	require.NoError(t, err)
	env.threadRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	env.dispatcher.AssertCalled(t, "CancelPending", mock.Anything, "msg-1")
}

func TestProcess_LostInsertRaceLoadsWinnerRow(t *testing.T) {
	env := newTestEnv(t)
	message := inboundMessage()
	winner := &models.Thread{
		ID:           "thread_other",
		MessageID:    "msg-1",
		AccountEmail: "outreach@agency.com",
		Status:       enum.ThreadStatusProcessing,
	}

	env.debouncer.On("ShouldProcess", mock.Anything, "orig-1", message.Body).Return(true)
	env.threadRepo.On("GetByMessageID", mock.Anything, "msg-1").Return(nil, repository.ErrThreadNotFound).Once()
	env.analyzer.On("Analyze", mock.Anything, message).Return(&models.EmailAnalysis{Intent: enum.IntentInterested}, nil)
	env.threadRepo.On("Insert", mock.Anything, mock.Anything).Return("", nil)
	env.threadRepo.On("GetByMessageID", mock.Anything, "msg-1").Return(winner, nil).Once()
	env.replyRepo.On("Create", mock.Anything, mock.Anything).Return("reply_1", nil)
	env.threadRepo.On("ApplyDecision", mock.Anything, "thread_other", enum.ThreadStatusFollowupActive, enum.StopReasonNone, 1, mock.Anything, "reply_1").Return(nil)
	env.mailbox.On("MarkRead", mock.Anything, "outreach@agency.com", "msg-1").Return(nil)
	env.dispatcher.On("SendFollowup", mock.Anything, "msg-1", 1).Return(nil)

	err := env.svc.process(context.Background(), message)

	require.NoError(t, err)
	env.threadRepo.AssertExpectations(t)
}

func TestProcess_AnalyzerErrorFallsBackToUnclear(t *testing.T) {
	env := newTestEnv(t)
	message := inboundMessage()

	env.debouncer.On("ShouldProcess", mock.Anything, "orig-1", message.Body).Return(true)
	env.threadRepo.On("GetByMessageID", mock.Anything, "msg-1").Return(nil, repository.ErrThreadNotFound)
	env.analyzer.On("Analyze", mock.Anything, message).Return(nil, context.DeadlineExceeded)
	env.threadRepo.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Thread).ID = "thread_1"
	}).Return("thread_1", nil)
	env.replyRepo.On("Create", mock.Anything, mock.Anything).Return("reply_1", nil)
	env.threadRepo.On("ApplyDecision", mock.Anything, "thread_1", enum.ThreadStatusDelegated, enum.StopReasonUnknownIntent, 0, mock.Anything, "reply_1").Return(nil)
	env.mailbox.On("MarkUnread", mock.Anything, "outreach@agency.com", "msg-1").Return(nil)
	env.dispatcher.On("CancelPending", mock.Anything, "msg-1").Return(nil)

	err := env.svc.process(context.Background(), message)

	require.NoError(t, err)
	env.threadRepo.AssertExpectations(t)
}
