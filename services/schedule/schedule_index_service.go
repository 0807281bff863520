package schedule

import (
	"context"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/tracing"
)

const (
	scheduleKey     = "followup_schedule"
	scheduleTempKey = "followup_schedule_tmp"
	syncLockKey     = "redis_sync_lock"
	syncLockTTL     = 14 * time.Minute
)

// claimDueScript removes and returns every member with score <= the cutoff
// in one round trip, so concurrent dispatchers never claim the same entry.
var claimDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES')
if #due > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
return due
`)

type scheduleIndexService struct {
	redis      redis.UniversalClient
	threadRepo interfaces.ThreadRepository
	log        logger.Logger
}

func NewScheduleIndexService(redisClient redis.UniversalClient, threadRepo interfaces.ThreadRepository, log logger.Logger) interfaces.ScheduleIndexService {
	return &scheduleIndexService{
		redis:      redisClient,
		threadRepo: threadRepo,
		log:        log,
	}
}

func (s *scheduleIndexService) Add(ctx context.Context, messageID string, dueAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scheduleIndexService.Add")
	defer span.Finish()
	tracing.TagComponentRedis(span)
	span.SetTag("message_id", messageID)

	err := s.redis.ZAdd(ctx, scheduleKey, redis.Z{
		Score:  float64(dueAt.UTC().Unix()),
		Member: messageID,
	}).Err()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *scheduleIndexService) Remove(ctx context.Context, messageID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scheduleIndexService.Remove")
	defer span.Finish()
	tracing.TagComponentRedis(span)
	span.SetTag("message_id", messageID)

	err := s.redis.ZRem(ctx, scheduleKey, messageID).Err()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *scheduleIndexService) Count(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scheduleIndexService.Count")
	defer span.Finish()
	tracing.TagComponentRedis(span)

	count, err := s.redis.ZCard(ctx, scheduleKey).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func (s *scheduleIndexService) DueAsOf(ctx context.Context, asOf time.Time) ([]interfaces.ScheduledFollowup, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scheduleIndexService.DueAsOf")
	defer span.Finish()
	tracing.TagComponentRedis(span)

	entries, err := s.redis.ZRangeByScoreWithScores(ctx, scheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatScore(asOf),
	}).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return toScheduledFollowups(entries), nil
}

func (s *scheduleIndexService) ClaimDue(ctx context.Context, asOf time.Time) ([]interfaces.ScheduledFollowup, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scheduleIndexService.ClaimDue")
	defer span.Finish()
	tracing.TagComponentRedis(span)

	raw, err := claimDueScript.Run(ctx, s.redis, []string{scheduleKey}, asOf.UTC().Unix()).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	flat, ok := raw.([]interface{})
	if !ok {
		err := errors.New("unexpected claim script reply type")
		tracing.TraceErr(span, err)
		return nil, err
	}

	claimed := make([]interfaces.ScheduledFollowup, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		member, _ := flat[i].(string)
		score, _ := flat[i+1].(string)
		if member == "" {
			continue
		}
		claimed = append(claimed, interfaces.ScheduledFollowup{
			MessageID: member,
			DueAt:     parseScore(score),
		})
	}
	span.LogKV("result.count", len(claimed))

	return claimed, nil
}

// Sync rebuilds the live index from the thread store. A temporary key is
// filled first and renamed over the live key so consumers never observe an
// empty window. The TTL lock keeps the rebuild singleton per cluster.
func (s *scheduleIndexService) Sync(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "scheduleIndexService.Sync")
	defer span.Finish()
	tracing.TagComponentRedis(span)

	locked, err := s.redis.SetNX(ctx, syncLockKey, 1, syncLockTTL).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !locked {
		span.LogKV("result", "sync lock held elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := s.redis.Del(context.WithoutCancel(ctx), syncLockKey).Err(); err != nil {
			s.log.Warnf("failed to release schedule sync lock: %v", err)
		}
	}()

	threads, err := s.threadRepo.GetThreadsForScheduleSync(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if len(threads) == 0 {
		if err := s.redis.Del(ctx, scheduleKey).Err(); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		span.LogKV("result", "no pending followups, index cleared")
		return nil
	}

	members := make([]redis.Z, 0, len(threads))
	for _, t := range threads {
		if t.NextFollowupAt == nil {
			continue
		}
		members = append(members, redis.Z{
			Score:  float64(t.NextFollowupAt.UTC().Unix()),
			Member: t.MessageID,
		})
	}

	if err := s.redis.Del(ctx, scheduleTempKey).Err(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.redis.ZAdd(ctx, scheduleTempKey, members...).Err(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.redis.Rename(ctx, scheduleTempKey, scheduleKey).Err(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Infof("schedule index synced with %d entries", len(members))
	span.LogKV("result.count", len(members))

	return nil
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UTC().Unix(), 10)
}

func toScheduledFollowups(entries []redis.Z) []interfaces.ScheduledFollowup {
	followups := make([]interfaces.ScheduledFollowup, 0, len(entries))
	for _, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok || member == "" {
			continue
		}
		followups = append(followups, interfaces.ScheduledFollowup{
			MessageID: member,
			DueAt:     time.Unix(int64(entry.Score), 0).UTC(),
		})
	}
	return followups
}

func parseScore(raw string) time.Time {
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(int64(score), 0).UTC()
}
