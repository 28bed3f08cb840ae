package stream

import (
	"sync"

	"github.com/rs/zerolog"
)

// EventType enumerates progress stream event shapes.
type EventType string

const (
	EventStatus           EventType = "status"
	EventWorkflowUpdate   EventType = "workflow:update"
	EventWorkflowComplete EventType = "workflow:complete"
	EventPing             EventType = "ping"
	EventError            EventType = "error"
)

// Event is one JSON line on a progress stream.
type Event struct {
	Type         EventType `json:"type"`
	JobID        string    `json:"job_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Progress     int       `json:"progress,omitempty"`
	ETASeconds   int       `json:"eta_seconds,omitempty"`
	Message      string    `json:"message,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	VideoURL     string    `json:"video_url,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

const subscriberBuffer = 16

// Subscription is one observer's view of a job's progress events. C is closed
// when the job reaches a terminal status (after the terminal event is
// delivered) or when the subscription is cancelled.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	jobID  string
	hub    *Hub
	once   sync.Once
}

// Cancel detaches the subscription from the hub. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.unsubscribe(s)
}

// Hub fans progress events out to all current subscribers of a job id. It is
// a purely in-memory registry decoupled from persistence. A process restart
// loses subscriptions; clients resynchronize through the job read path.
// There is no replay buffer.
type Hub struct {
	mu     sync.RWMutex
	byJob  map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		byJob:  make(map[string]map[*Subscription]struct{}),
		logger: logger.With().Str("component", "stream").Logger(),
	}
}

// Subscribe registers a new observer for the job id. Events published from
// now on are delivered; earlier ones are gone.
func (h *Hub) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		ch:    make(chan Event, subscriberBuffer),
		jobID: jobID,
		hub:   h,
	}
	sub.C = sub.ch

	h.mu.Lock()
	subs, ok := h.byJob[jobID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.byJob[jobID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Publish delivers the event to every current subscriber of the job.
// Delivery is best-effort: a subscriber whose buffer is full is skipped
// rather than blocking the workflow.
func (h *Hub) Publish(jobID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.byJob[jobID] {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn().Str("job_id", jobID).Str("event", string(event.Type)).Msg("subscriber buffer full, event dropped")
		}
	}
}

// CloseJob tears down every subscription for the job. Called after the
// terminal event has been published; buffered events are still drained by
// receivers before they observe the close.
func (h *Hub) CloseJob(jobID string) {
	h.mu.Lock()
	subs := h.byJob[jobID]
	delete(h.byJob, jobID)
	h.mu.Unlock()

	for sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Subscribers reports the current observer count for a job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byJob[jobID])
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	if subs, ok := h.byJob[s.jobID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.byJob, s.jobID)
		}
	}
	h.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
