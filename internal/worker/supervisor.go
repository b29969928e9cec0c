package worker

import (
	"context"
	"fmt"
	"time"

	"sengine/internal/logger"
	"sengine/internal/queue"
)

// settleDelay separates topology declaration from consumer start so the
// broker finishes binding before deliveries begin.
const settleDelay = 500 * time.Millisecond

// Supervisor owns component lifecycle for the worker process. Startup is
// ordered (consumers, scheduler, monitor); shutdown stops the scheduler first
// so nothing new is produced, then the monitor, then consumers drain bounded
// by the kill timeout.
type Supervisor struct {
	consumers   []*queue.Consumer
	scheduler   *PreQueueScheduler
	monitor     *QueueMonitor
	killTimeout time.Duration
	log         logger.Logger
}

// NewSupervisor creates a supervisor over the given components. scheduler
// and monitor may be nil when a deployment runs consumers only.
func NewSupervisor(consumers []*queue.Consumer, scheduler *PreQueueScheduler, monitor *QueueMonitor, killTimeout time.Duration, log logger.Logger) *Supervisor {
	return &Supervisor{
		consumers:   consumers,
		scheduler:   scheduler,
		monitor:     monitor,
		killTimeout: killTimeout,
		log:         log,
	}
}

// Start brings the components up in order. Any consumer failing to start
// aborts startup.
func (s *Supervisor) Start(ctx context.Context) error {
	time.Sleep(settleDelay)

	for _, c := range s.consumers {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
	}

	if s.scheduler != nil {
		s.scheduler.Start(ctx)
	}
	if s.monitor != nil {
		s.monitor.Start(ctx)
	}

	s.log.WithField("consumers", len(s.consumers)).Info("Worker components started")
	return nil
}

// Stop shuts everything down: scheduler first so nothing new is queued, then
// consumers. In-flight handlers get at most the kill timeout; after that the
// process exits regardless of remaining work.
func (s *Supervisor) Stop() {
	s.log.Info("Shutting down worker components")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.monitor != nil {
		s.monitor.Stop()
	}

	done := make(chan struct{})
	go func() {
		for _, c := range s.consumers {
			if err := c.Stop(); err != nil {
				s.log.WithField("error", err.Error()).Warn("Consumer stop failed")
			}
		}
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All consumers drained")
	case <-time.After(s.killTimeout):
		s.log.Warn("Kill timeout reached, abandoning in-flight handlers")
	}
}
