package gamification

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/teachme/backend/internal/apperror"
	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/logger"
	"github.com/teachme/backend/internal/metrics"
)

// Deps are the collaborators a Service is built from. Cache, Metrics and
// Members are optional.
type Deps struct {
	DB      *database.DB
	Log     *logger.Logger
	Cache   *redis.Client
	Metrics *metrics.Metrics
	Members MembershipResolver
	Now     func() time.Time
}

type Config struct {
	TxMaxRetries        int
	DailyLoginXP        int
	LessonCompletionXP  int
	LeaderboardCacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		TxMaxRetries:        3,
		DailyLoginXP:        10,
		LessonCompletionXP:  50,
		LeaderboardCacheTTL: 30 * time.Second,
	}
}

type Service struct {
	db      *database.DB
	log     *logger.Logger
	cache   *leaderboardCache
	metrics *metrics.Metrics
	members MembershipResolver
	now     func() time.Time
	cfg     Config

	boards singleflight.Group
}

func NewService(deps Deps, cfg Config) *Service {
	defaults := DefaultConfig()
	if cfg.TxMaxRetries < 1 {
		cfg.TxMaxRetries = defaults.TxMaxRetries
	}
	if cfg.DailyLoginXP <= 0 {
		cfg.DailyLoginXP = defaults.DailyLoginXP
	}
	if cfg.LessonCompletionXP <= 0 {
		cfg.LessonCompletionXP = defaults.LessonCompletionXP
	}
	if cfg.LeaderboardCacheTTL <= 0 {
		cfg.LeaderboardCacheTTL = defaults.LeaderboardCacheTTL
	}

	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	members := deps.Members
	if members == nil {
		members = NewSQLMembership(deps.DB)
	}

	return &Service{
		db:      deps.DB,
		log:     log.With("component", "gamification"),
		cache:   newLeaderboardCache(deps.Cache, cfg.LeaderboardCacheTTL),
		metrics: deps.Metrics,
		members: members,
		now:     now,
		cfg:     cfg,
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// inTx runs fn in a retried transaction with a Store bound to it.
func (s *Service) inTx(ctx context.Context, fn func(st *Store) error) error {
	return s.db.RetryTx(ctx, s.cfg.TxMaxRetries, func(tx *database.Tx) error {
		return fn(NewStore(tx))
	})
}

// fail logs err against the student and action and maps exhausted lock
// retries to ErrConcurrentUpdateConflict.
func (s *Service) fail(action, studentID string, err error) error {
	if err == nil {
		return nil
	}
	if s.db != nil && s.db.Dialect.IsRetryable(err) {
		s.metrics.ObserveTxConflict(action)
		s.log.Warn("transaction conflict", "action", action, "student_id", studentID, "error", err)
		return ErrConcurrentUpdateConflict
	}
	if isClientError(err) {
		s.log.Warn("request rejected", "action", action, "student_id", studentID, "error", err)
		return err
	}
	s.log.Error("gamification failure", "action", action, "student_id", studentID, "error", err)
	return err
}

func isClientError(err error) bool {
	return errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrBadRequest) ||
		errors.Is(err, apperror.ErrConflict) ||
		errors.Is(err, apperror.ErrForbidden) ||
		errors.Is(err, context.Canceled)
}
