package debounce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/redis/go-redis/v9"

	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/tracing"
)

const (
	debounceKeyPrefix = "debounce:"
	debounceWindow    = 5 * time.Second
	minBodyLength     = 10
)

// noiseTokens are reply bodies that carry no routable signal.
var noiseTokens = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "thanks": {}, "thank you": {},
	"ok": {}, "okay": {}, "yes": {}, "no": {}, "yep": {}, "nope": {},
	"?": {}, "thx": {}, "ty": {},
}

type debounceService struct {
	redis redis.UniversalClient
	log   logger.Logger
}

func NewDebounceService(redisClient redis.UniversalClient, log logger.Logger) interfaces.DebounceService {
	return &debounceService{
		redis: redisClient,
		log:   log,
	}
}

// IsTrivialBody reports whether a body is too short or pure noise to be
// worth classifying. Pure function of the body.
func IsTrivialBody(body string) bool {
	normalized := strings.ToLower(strings.TrimSpace(body))
	if len(normalized) < minBodyLength {
		return true
	}
	_, noise := noiseTokens[normalized]
	return noise
}

// ShouldProcess gates on the thread key so every message in one
// conversation shares a single window.
func (s *debounceService) ShouldProcess(ctx context.Context, threadKey, body string) bool {
	span, ctx := opentracing.StartSpanFromContext(ctx, "debounceService.ShouldProcess")
	defer span.Finish()
	tracing.TagComponentRedis(span)
	span.SetTag("thread_key", threadKey)

	if IsTrivialBody(body) {
		span.LogKV("result", "trivial body rejected")
		return false
	}

	ok, err := s.redis.SetNX(ctx, debounceKeyPrefix+threadKey, 1, debounceWindow).Result()
	if err != nil {
		// Losing the gate must not lose the reply. Process without dedup
		// protection and make the degradation visible.
		tracing.TraceErr(span, err)
		s.log.Warnf("debounce store unavailable, bypassing gate for %s: %v", threadKey, err)
		return true
	}
	if !ok {
		span.LogKV("result", "duplicate within debounce window")
	}

	return ok
}

func (s *debounceService) MarkProcessed(ctx context.Context, threadKey string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "debounceService.MarkProcessed")
	defer span.Finish()
	tracing.TagComponentRedis(span)

	err := s.redis.Set(ctx, debounceKeyPrefix+threadKey, 1, debounceWindow).Err()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *debounceService) ClearDebounce(ctx context.Context, threadKey string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "debounceService.ClearDebounce")
	defer span.Finish()
	tracing.TagComponentRedis(span)

	err := s.redis.Del(ctx, fmt.Sprintf("%s%s", debounceKeyPrefix, threadKey)).Err()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
