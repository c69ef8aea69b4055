// Package scheduler re-runs saved requests ("watches") on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/config"
	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/pipeline"
)

const (
	DefaultInterval = time.Minute
	DefaultLockTTL  = 30 * time.Minute

	lastRunPrefix = "watch:last:"
	lockPrefix    = "watch:lock:"
)

// Runner executes one request end to end.
type Runner interface {
	Run(ctx context.Context, raw string, progress func(executor.Progress)) (pipeline.Report, error)
}

// Scheduler checks every watch on each tick. With Redis, last run times are
// shared and a SETNX lock keeps two instances from running the same watch.
type Scheduler struct {
	Watches  []config.WatchConfig
	Runner   Runner
	Redis    redis.Cmdable
	Interval time.Duration
	LockTTL  time.Duration
	Jitter   time.Duration
	Now      func() time.Time
	Logger   *zap.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// Start ticks until ctx is done. The first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs the watches that are due, one after the other, and returns how
// many ran.
func (s *Scheduler) Tick(ctx context.Context) int {
	ran := 0
	for _, w := range s.Watches {
		if ctx.Err() != nil {
			return ran
		}
		if s.runIfDue(ctx, w) {
			ran++
		}
	}
	return ran
}

func (s *Scheduler) runIfDue(ctx context.Context, w config.WatchConfig) bool {
	logger := s.logger().With(zap.String("watch", w.Name))
	now := s.now()
	last, err := s.lastRun(ctx, w.Name)
	if err != nil {
		logger.Warn("read last run", zap.Error(err))
		return false
	}
	if !isDue(w.Cron, last, now) {
		return false
	}
	if s.Redis != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = DefaultLockTTL
		}
		ok, err := s.Redis.SetNX(ctx, lockPrefix+w.Name, "1", ttl).Result()
		if err != nil || !ok {
			logger.Debug("watch locked elsewhere", zap.Error(err))
			return false
		}
		defer s.Redis.Del(context.WithoutCancel(ctx), lockPrefix+w.Name)
	}
	if s.Jitter > 0 {
		select {
		case <-time.After(rand.N(s.Jitter)):
		case <-ctx.Done():
			return false
		}
	}

	report, err := s.Runner.Run(ctx, w.Request, nil)
	var rejected *pipeline.RejectionError
	switch {
	case errors.As(err, &rejected):
		logger.Warn("watch request rejected", zap.String("message", rejected.Message))
	case err != nil:
		logger.Error("watch run failed", zap.Error(err))
	default:
		logger.Info("watch run complete", zap.String("report_id", report.ID))
	}
	if err := s.setLastRun(ctx, w.Name, now); err != nil {
		logger.Warn("store last run", zap.Error(err))
	}
	return true
}

func (s *Scheduler) lastRun(ctx context.Context, name string) (*time.Time, error) {
	if s.Redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t, ok := s.last[name]; ok {
			return &t, nil
		}
		return nil, nil
	}
	v, err := s.Redis.Get(ctx, lastRunPrefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	unix, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, nil
	}
	t := time.Unix(unix, 0)
	return &t, nil
}

func (s *Scheduler) setLastRun(ctx context.Context, name string, t time.Time) error {
	if s.Redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.last == nil {
			s.last = make(map[string]time.Time)
		}
		s.last[name] = t
		return nil
	}
	return s.Redis.Set(ctx, lastRunPrefix+name, strconv.FormatInt(t.Unix(), 10), 0).Err()
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger.Named("scheduler")
}

// isDue determines if a watch with cronSpec should run at now based on its
// last run time. A watch that never ran is due; an invalid expression falls
// back to daily.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return now.Sub(*last) >= 24*time.Hour
	}
	next := expr.Next(*last)
	return !next.IsZero() && !next.After(now)
}
