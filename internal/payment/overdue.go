package payment

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultOverdueSchedule runs the sweep hourly.
const DefaultOverdueSchedule = "@hourly"

const sweepTimeout = 2 * time.Minute

// OverdueSweeper periodically flags memberships whose payment date has passed.
type OverdueSweeper struct {
	memberships *MembershipLifecycle
	cron        *cron.Cron
	logger      *zap.Logger
}

func NewOverdueSweeper(memberships *MembershipLifecycle, logger *zap.Logger) *OverdueSweeper {
	logger = componentLogger(logger, "overdue")
	return &OverdueSweeper{
		memberships: memberships,
		cron:        cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger:      logger,
	}
}

// Sweep runs once and returns how many memberships were marked.
func (s *OverdueSweeper) Sweep(ctx context.Context) (int, error) {
	marked, err := s.memberships.MarkOverdue(ctx)
	if err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
		return 0, err
	}
	s.logger.Info("overdue sweep finished", zap.Int("marked", marked))
	return marked, nil
}

// Start registers the sweep on the given cron schedule and starts the scheduler.
func (s *OverdueSweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultOverdueSchedule
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		_, _ = s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.logger.Info("scheduled overdue sweep", zap.String("schedule", schedule))
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *OverdueSweeper) Stop() context.Context {
	return s.cron.Stop()
}
