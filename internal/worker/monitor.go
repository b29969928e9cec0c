package worker

import (
	"context"
	"time"

	"sengine/internal/logger"
	"sengine/internal/queue"
)

const (
	monitorInterval   = 30 * time.Second
	monitorTableEvery = 10 // cycles between full depth tables, 5 minutes
	depthWarnLimit    = 100
)

// DepthReader reports the ready-message count of a queue.
type DepthReader interface {
	QueueDepth(name string) (int, error)
}

// QueueMonitor samples queue depths, warning on backlog and logging a full
// depth table periodically.
type QueueMonitor struct {
	depths   DepthReader
	queues   []string
	log      logger.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewQueueMonitor creates a queue depth monitor over the standard queue set.
func NewQueueMonitor(depths DepthReader, log logger.Logger) *QueueMonitor {
	return &QueueMonitor{
		depths:   depths,
		queues:   queue.MonitoredQueues,
		log:      log,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the sampling loop until Stop is called or the context ends.
func (m *QueueMonitor) Start(ctx context.Context) {
	go func() {
		defer close(m.doneChan)

		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()

		cycle := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				cycle++
				m.sample(cycle%monitorTableEvery == 0)
			}
		}
	}()
}

// Stop terminates the loop and waits for it to exit.
func (m *QueueMonitor) Stop() {
	close(m.stopChan)
	<-m.doneChan
}

func (m *QueueMonitor) sample(logTable bool) {
	table := make(map[string]interface{}, len(m.queues))

	for _, name := range m.queues {
		depth, err := m.depths.QueueDepth(name)
		if err != nil {
			m.log.WithFields(map[string]interface{}{
				"queue": name,
				"error": err.Error(),
			}).Warn("Failed to read queue depth")
			continue
		}
		table[name] = depth

		if depth > depthWarnLimit {
			m.log.WithFields(map[string]interface{}{
				"queue": name,
				"depth": depth,
			}).Warn("Queue depth above threshold")
		}
	}

	if logTable && len(table) > 0 {
		m.log.WithFields(table).Info("Queue depth snapshot")
	}
}
