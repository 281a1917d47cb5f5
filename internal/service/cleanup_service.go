package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerit/auth-service/pkg/jobs"
)

type cleanupTokenStore interface {
	DeleteStaleRefreshTokens(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredMagicLinkTokens(ctx context.Context, now time.Time) (int64, error)
}

// CleanupConfig defines the cadence and worker pool size for storage
// hygiene jobs.
type CleanupConfig struct {
	Interval time.Duration
	Workers  int
}

const (
	jobTypeRefreshTokens  = "cleanup_refresh_tokens"
	jobTypeMagicLinks     = "cleanup_magic_link_tokens"
	defaultSweepFrequency = time.Hour
)

// CleanupService periodically purges expired and revoked token rows.
// Correctness never depends on it: expiry, revocation and single-use are
// all enforced at read time, so a missed sweep only costs disk.
type CleanupService struct {
	tokens cleanupTokenStore
	logger *zap.Logger
	config CleanupConfig
	queue  *jobs.Queue
	cancel context.CancelFunc
}

// NewCleanupService constructs a CleanupService instance.
func NewCleanupService(tokens cleanupTokenStore, logger *zap.Logger, config CleanupConfig) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = defaultSweepFrequency
	}
	s := &CleanupService{
		tokens: tokens,
		logger: logger,
		config: config,
	}
	s.queue = jobs.NewQueue("token-cleanup", s.handle, jobs.QueueConfig{
		Workers: config.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the workers and the ticker that feeds them.
func (s *CleanupService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)

	go func() {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.enqueueSweep()
			}
		}
	}()
}

// Stop halts the ticker and drains the workers.
func (s *CleanupService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Stop()
}

func (s *CleanupService) enqueueSweep() {
	for _, jobType := range []string{jobTypeRefreshTokens, jobTypeMagicLinks} {
		job := jobs.Job{ID: uuid.NewString(), Type: jobType}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue cleanup job", zap.String("type", jobType), zap.Error(err))
		}
	}
}

func (s *CleanupService) handle(ctx context.Context, job jobs.Job) error {
	now := time.Now().UTC()
	switch job.Type {
	case jobTypeRefreshTokens:
		n, err := s.tokens.DeleteStaleRefreshTokens(ctx, now)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("purged stale refresh tokens", zap.Int64("count", n))
		}
	case jobTypeMagicLinks:
		n, err := s.tokens.DeleteExpiredMagicLinkTokens(ctx, now)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("purged expired magic link tokens", zap.Int64("count", n))
		}
	default:
		s.logger.Warn("unknown cleanup job type", zap.String("type", job.Type))
	}
	return nil
}
