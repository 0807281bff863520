package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/utils"
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

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestService(t *testing.T) (*miniredis.Miniredis, *mockThreadRepository, *scheduleIndexService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &mockThreadRepository{}
	svc := &scheduleIndexService{redis: client, threadRepo: repo, log: getLogger()}
	return mr, repo, svc
}

func activeThread(messageID string, dueAt time.Time) *models.Thread {
	return &models.Thread{
		ID:             "thread_" + messageID,
		MessageID:      messageID,
		Status:         enum.ThreadStatusFollowupActive,
		NextFollowupAt: utils.TimePtr(dueAt),
	}
}

func TestAddRemoveCount(t *testing.T) {
	_, _, svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, svc.Add(ctx, "msg-1", now.Add(time.Hour)))
	require.NoError(t, svc.Add(ctx, "msg-2", now.Add(2*time.Hour)))

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, svc.Remove(ctx, "msg-1"))
	count, err = svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDueAsOf_ReturnsOnlyDueEntries(t *testing.T) {
	_, _, svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, svc.Add(ctx, "msg-past", now.Add(-time.Minute)))
	require.NoError(t, svc.Add(ctx, "msg-now", now))
	require.NoError(t, svc.Add(ctx, "msg-future", now.Add(time.Hour)))

	due, err := svc.DueAsOf(ctx, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, entry := range due {
		ids = append(ids, entry.MessageID)
	}
	assert.Equal(t, []string{"msg-past", "msg-now"}, ids)

	// Non-destructive read.
	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestClaimDue_RemovesClaimedEntries(t *testing.T) {
	_, _, svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, svc.Add(ctx, "msg-due", now.Add(-time.Second)))
	require.NoError(t, svc.Add(ctx, "msg-future", now.Add(time.Hour)))

	claimed, err := svc.ClaimDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "msg-due", claimed[0].MessageID)

	// A second claim finds nothing; the entry was consumed.
	claimed, err = svc.ClaimDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSync_RebuildsIndexFromStore(t *testing.T) {
	mr, repo, svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Stale entry that no longer exists in the store.
	require.NoError(t, svc.Add(ctx, "msg-stale", now.Add(time.Hour)))

	repo.On("GetThreadsForScheduleSync", mock.Anything).Return([]*models.Thread{
		activeThread("msg-1", now.Add(24*time.Hour)),
		activeThread("msg-2", now.Add(48*time.Hour)),
	}, nil)

	require.NoError(t, svc.Sync(ctx))

	due, err := svc.DueAsOf(ctx, now.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "msg-1", due[0].MessageID)
	assert.Equal(t, "msg-2", due[1].MessageID)

	// The temp key never survives a sync and the lock is released.
	assert.False(t, mr.Exists(scheduleTempKey))
	assert.False(t, mr.Exists(syncLockKey))
	repo.AssertExpectations(t)
}

func TestSync_EmptyStoreClearsIndex(t *testing.T) {
	mr, repo, svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "msg-stale", time.Now().UTC().Add(time.Hour)))
	repo.On("GetThreadsForScheduleSync", mock.Anything).Return([]*models.Thread{}, nil)

	require.NoError(t, svc.Sync(ctx))

	assert.False(t, mr.Exists(scheduleKey))
}

func TestSync_SkipsWhenLockHeld(t *testing.T) {
	mr, repo, svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(syncLockKey, "1"))
	mr.SetTTL(syncLockKey, syncLockTTL)

	require.NoError(t, svc.Sync(ctx))

	// The store was never consulted.
	repo.AssertNotCalled(t, "GetThreadsForScheduleSync", mock.Anything)
}
