package debounce

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outreachloop/followup/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestService(t *testing.T) (*miniredis.Miniredis, *debounceService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, &debounceService{redis: client, log: getLogger()}
}

func TestIsTrivialBody(t *testing.T) {
	tests := []struct {
		body    string
		trivial bool
	}{
		{"123456789", true},   // 9 chars, under the length floor
		{"1234567890", false}, // 10 chars passes
		{"  hi  ", true},
		{"Thanks", true},
		{"THANK YOU", true},
		{"?", true},
		{"", true},
		{"yes, let's talk about the campaign", false},
		{strings.Repeat("a", 10), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.trivial, IsTrivialBody(tt.body), "body %q", tt.body)
	}
}

func TestShouldProcess_TrivialRejectedBeforeRedis(t *testing.T) {
	mr, svc := newTestService(t)

	ok := svc.ShouldProcess(context.Background(), "conv-1", "thx")

	assert.False(t, ok)
	assert.False(t, mr.Exists("debounce:conv-1"))
}

func TestShouldProcess_FirstWinsSecondLoses(t *testing.T) {
	mr, svc := newTestService(t)
	ctx := context.Background()
	body := "I'm interested, tell me more about the campaign."

	assert.True(t, svc.ShouldProcess(ctx, "conv-1", body))
	assert.False(t, svc.ShouldProcess(ctx, "conv-1", body))
	assert.True(t, mr.Exists("debounce:conv-1"))

	// A different conversation has its own gate.
	assert.True(t, svc.ShouldProcess(ctx, "conv-2", body))
}

func TestShouldProcess_GateIsSharedAcrossMessagesOfOneThread(t *testing.T) {
	mr, svc := newTestService(t)
	ctx := context.Background()

	// Two distinct messages arriving back to back in the same conversation
	// share one window; only the first opens a processing run.
	assert.True(t, svc.ShouldProcess(ctx, "conv-1", "I'm interested, tell me more."))
	assert.False(t, svc.ShouldProcess(ctx, "conv-1", "Oh and also, what are the rates?"))

	assert.True(t, mr.Exists("debounce:conv-1"))
	keys := mr.Keys()
	require.Len(t, keys, 1)
}

func TestShouldProcess_WindowExpires(t *testing.T) {
	mr, svc := newTestService(t)
	ctx := context.Background()
	body := "I'm interested, tell me more about the campaign."

	require.True(t, svc.ShouldProcess(ctx, "conv-1", body))

	ttl := mr.TTL("debounce:conv-1")
	assert.Equal(t, 5*time.Second, ttl)

	mr.FastForward(6 * time.Second)
	assert.True(t, svc.ShouldProcess(ctx, "conv-1", body))
}

func TestShouldProcess_BypassesOnRedisFailure(t *testing.T) {
	mr, svc := newTestService(t)
	mr.Close()

	ok := svc.ShouldProcess(context.Background(), "conv-1", "I'm interested, tell me more.")

	// The gate is an optimization; a dead store must not drop replies.
	assert.True(t, ok)
}

func TestMarkProcessed_RefreshesWindow(t *testing.T) {
	mr, svc := newTestService(t)
	ctx := context.Background()
	body := "I'm interested, tell me more about the campaign."

	require.NoError(t, svc.MarkProcessed(ctx, "conv-1"))
	assert.False(t, svc.ShouldProcess(ctx, "conv-1", body))

	mr.FastForward(3 * time.Second)
	require.NoError(t, svc.MarkProcessed(ctx, "conv-1"))
	assert.Equal(t, 5*time.Second, mr.TTL("debounce:conv-1"))
}

func TestClearDebounce(t *testing.T) {
	mr, svc := newTestService(t)
	ctx := context.Background()

	require.True(t, svc.ShouldProcess(ctx, "conv-1", "I'm interested, tell me more."))
	require.True(t, mr.Exists("debounce:conv-1"))

	require.NoError(t, svc.ClearDebounce(ctx, "conv-1"))
	assert.False(t, mr.Exists("debounce:conv-1"))
}
