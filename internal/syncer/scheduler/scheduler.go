package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
)

const (
	TriggerBlock  = "block"
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// Job is one sync cycle. trigger names what started it.
type Job func(ctx context.Context, trigger string) error

// HeadReader reports the source chain head.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

type Config struct {
	// BlockInterval runs the job every N source blocks; 0 disables polling.
	BlockInterval uint64
	PollInterval  time.Duration
	// Cron is a six-field (with seconds) schedule; empty disables it.
	Cron string
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (c Config) Validate() error {
	if c.BlockInterval == 0 && c.Cron == "" {
		return errors.New("either a block interval or a cron schedule is required")
	}
	if c.BlockInterval > 0 && c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.Cron != "" {
		if _, err := cronParser.Parse(c.Cron); err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", c.Cron, err)
		}
	}
	return nil
}

// Scheduler fires the job on block intervals and on a cron schedule. Runs
// never overlap; a trigger that arrives mid-run is dropped.
type Scheduler struct {
	cfg    Config
	head   HeadReader
	job    Job
	logger logging.Logger

	cron      *cron.Cron
	running   sync.Mutex
	lastBlock uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, head HeadReader, job Job, logger logging.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:    cfg,
		head:   head,
		job:    job,
		logger: logger,
		cron:   cron.New(cron.WithParser(cronParser)),
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.Cron != "" {
		if _, err := s.cron.AddFunc(s.cfg.Cron, func() {
			s.Trigger(ctx, TriggerCron)
		}); err != nil {
			s.cancel()
			return fmt.Errorf("failed to schedule cron job: %w", err)
		}
		s.cron.Start()
		s.logger.Info("Cron trigger scheduled", "schedule", s.cfg.Cron)
	}

	if s.cfg.BlockInterval > 0 {
		s.wg.Add(1)
		go s.pollBlocks(ctx)
		s.logger.Info("Block trigger started", "interval_blocks", s.cfg.BlockInterval, "poll", s.cfg.PollInterval)
	}
	return nil
}

// Stop halts both triggers and waits for a running job.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.running.Lock()
	defer s.running.Unlock()
}

// Trigger runs the job now unless a run is in progress. It reports whether
// the job ran.
func (s *Scheduler) Trigger(ctx context.Context, trigger string) bool {
	if !s.running.TryLock() {
		s.logger.Debug("Skipping trigger, sync already running", "trigger", trigger)
		return false
	}
	defer s.running.Unlock()

	if err := s.job(ctx, trigger); err != nil {
		s.logger.Warn("Sync cycle finished with errors", "trigger", trigger, "error", err)
	}
	return true
}

func (s *Scheduler) pollBlocks(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.checkHead(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHead(ctx)
		}
	}
}

// checkHead fires the job when the head moved BlockInterval past the block
// of the last run. The first observed head always fires.
func (s *Scheduler) checkHead(ctx context.Context) {
	head, err := s.head.BlockNumber(ctx)
	if err != nil {
		s.logger.Warn("Failed to read source head", "error", err)
		return
	}
	if s.lastBlock != 0 && head < s.lastBlock+s.cfg.BlockInterval {
		return
	}
	if s.Trigger(ctx, TriggerBlock) {
		s.lastBlock = head
	}
}
