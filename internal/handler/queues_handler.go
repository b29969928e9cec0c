package handler

import (
	"net/http"
	"time"

	"sengine/internal/queue"
)

// DepthReader reports the ready-message count of a queue.
type DepthReader interface {
	QueueDepth(name string) (int, error)
}

// QueuesHandler exposes a queue depth snapshot for operators.
type QueuesHandler struct {
	depths DepthReader
}

// NewQueuesHandler creates a new QueuesHandler instance
func NewQueuesHandler(depths DepthReader) *QueuesHandler {
	return &QueuesHandler{depths: depths}
}

// queueDepthResponse is the /queues response body.
type queueDepthResponse struct {
	Queues    map[string]int `json:"queues"`
	Errors    map[string]string `json:"errors,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// HandleQueues handles GET requests to the /queues endpoint
func (h *QueuesHandler) HandleQueues(w http.ResponseWriter, r *http.Request) {
	resp := queueDepthResponse{
		Queues:    make(map[string]int),
		Timestamp: time.Now().UTC(),
	}

	for _, name := range queue.MonitoredQueues {
		depth, err := h.depths.QueueDepth(name)
		if err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[name] = err.Error()
			continue
		}
		resp.Queues[name] = depth
	}

	WriteOK(w, resp)
}
