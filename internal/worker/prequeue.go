package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sengine/internal/logger"
	"sengine/internal/models"
	"sengine/internal/queue"
	"sengine/internal/repository"
)

// JobPublisher is the slice of the queue publisher the scheduler needs.
type JobPublisher interface {
	PublishWithID(ctx context.Context, exchange, key, messageID string, payload interface{}) error
}

// BrokerHealth reports whether the broker connection is usable.
type BrokerHealth interface {
	IsConnected() bool
}

// PreQueueScheduler promotes due scheduled messages from storage onto the
// drip exchange ahead of their send time. Rows flip to queued only after the
// broker confirms the publish, so a lost publish leaves the row pending for
// the next cycle. Run exactly one instance fleet-wide.
type PreQueueScheduler struct {
	scheduled repository.ScheduledMessageRepository
	publisher JobPublisher
	broker    BrokerHealth
	log       logger.Logger

	interval time.Duration
	window   time.Duration
	batch    int

	mu         sync.Mutex
	inProgress bool

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewPreQueueScheduler creates a pre-queue scheduler
func NewPreQueueScheduler(
	scheduled repository.ScheduledMessageRepository,
	publisher JobPublisher,
	broker BrokerHealth,
	interval, window time.Duration,
	batch int,
	log logger.Logger,
) *PreQueueScheduler {
	return &PreQueueScheduler{
		scheduled: scheduled,
		publisher: publisher,
		broker:    broker,
		log:       log,
		interval:  interval,
		window:    window,
		batch:     batch,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start runs the ticker loop until Stop is called or the context ends.
func (s *PreQueueScheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.doneChan)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.WithFields(map[string]interface{}{
			"interval": s.interval.String(),
			"window":   s.window.String(),
			"batch":    s.batch,
		}).Info("Pre-queue scheduler started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.RunCycle(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the current cycle to finish.
func (s *PreQueueScheduler) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.log.Info("Pre-queue scheduler stopped")
}

// RunCycle performs one promotion pass. Overlapping cycles are skipped
// rather than queued so a slow database cannot pile up work.
func (s *PreQueueScheduler) RunCycle(ctx context.Context) {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		s.log.Warn("Pre-queue cycle still running, skipping")
		return
	}
	s.inProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	if !s.broker.IsConnected() {
		s.log.Warn("Broker disconnected, skipping pre-queue cycle")
		return
	}

	now := time.Now().UTC()
	due, err := s.scheduled.GetDue(ctx, now.Add(s.window), s.batch)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("Failed to load due messages")
		return
	}
	if len(due) == 0 {
		return
	}

	queuedIDs := make([]int64, 0, len(due))
	for _, msg := range due {
		if err := s.publishJob(ctx, msg, now); err != nil {
			s.log.WithFields(map[string]interface{}{
				"scheduledMessageId": msg.ID,
				"error":              err.Error(),
			}).Warn("Failed to publish drip job, row stays pending")
			continue
		}
		queuedIDs = append(queuedIDs, msg.ID)
	}

	if len(queuedIDs) == 0 {
		return
	}

	updated, err := s.scheduled.MarkQueued(ctx, queuedIDs, now)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("Failed to mark rows queued")
		return
	}

	s.log.WithFields(map[string]interface{}{
		"due":       len(due),
		"published": len(queuedIDs),
		"queued":    updated,
	}).Info("Pre-queue cycle complete")
}

func (s *PreQueueScheduler) publishJob(ctx context.Context, msg *models.ScheduledMessage, now time.Time) error {
	job := queue.DripJob{
		ScheduledMessageID: msg.ID,
		DripContactID:      msg.DripContactID,
		UserID:             msg.UserID,
		WorkspaceID:        msg.WorkspaceID,
		ContactID:          msg.ContactID,
		DripID:             msg.DripID,
		CampaignID:         msg.CampaignID,
		ToNumber:           msg.ToNumber,
		Message:            msg.Body,
		ScheduledAt:        msg.ScheduledAt,
		QueuedAt:           now,
	}
	if msg.FromNumber != nil {
		job.FromNumber = *msg.FromNumber
	}
	if msg.MediaURL != nil {
		job.MediaURL = *msg.MediaURL
	}

	token := fmt.Sprintf("sm-%d", msg.ID)
	return s.publisher.PublishWithID(ctx, queue.ExchangeDrip, queue.KeyDripSend, token, job)
}
