package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/property_registry/pkg/logger"
)

// Scheduler runs a Syncer on a cron schedule. Runs never overlap.
type Scheduler struct {
	cron    *cron.Cron
	syncer  *Syncer
	timeout time.Duration
	log     *logger.Logger
}

// NewScheduler registers s under schedule, a cron expression or descriptor
// such as "@every 5m".
func NewScheduler(schedule string, s *Syncer, timeout time.Duration, log *logger.Logger) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewDefault("syncer")
	}
	sch := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		syncer:  s,
		timeout: timeout,
		log:     log,
	}
	if _, err := sch.cron.AddFunc(schedule, sch.tick); err != nil {
		return nil, fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", schedule, err)
	}
	return sch, nil
}

// Start begins running scheduled syncs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sync or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.syncer.Run(ctx); err != nil {
		s.log.WithError(err).Warn("scheduled sync failed")
	}
}
