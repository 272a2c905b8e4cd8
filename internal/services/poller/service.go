// Package poller runs an optional internal driver for active jobs. Clients
// normally drive jobs by polling the process-next endpoint; the poller covers
// deployments where no client stays connected (e.g. overnight batches).
package poller

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/engine"
	"github.com/ternarybob/prospector/internal/interfaces"
)

// Service drives active jobs on a cron schedule.
type Service struct {
	processor *engine.Processor
	jobs      interfaces.JobStorage
	config    common.PollerConfig
	logger    arbor.ILogger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewService creates the poller. It does nothing until Start is called.
func NewService(processor *engine.Processor, jobs interfaces.JobStorage, config common.PollerConfig, logger arbor.ILogger) *Service {
	return &Service{
		processor: processor,
		jobs:      jobs,
		config:    config,
		logger:    logger,
	}
}

// Start schedules the polling loop. No-op when the poller is disabled.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Debug().Msg("Internal poller disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.config.Schedule, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Internal poller started")
	return nil
}

// Stop halts the polling loop and waits for an in-flight tick.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Internal poller stopped")
}

// tick processes up to MaxPerTick items for every active job.
func (s *Service) tick() {
	ctx := context.Background()

	jobs, err := s.jobs.ListActiveJobs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Poller could not list active jobs")
		return
	}

	for _, job := range jobs {
		budget := s.config.MaxPerTick
		if budget <= 0 {
			budget = 1
		}

		for i := 0; i < budget; i++ {
			result, err := s.processor.ProcessNext(ctx, job.ID, job.UserID)
			if err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Poller tick failed for job")
				break
			}
			if !result.HasMore {
				break
			}
		}
	}
}
