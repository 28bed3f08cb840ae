package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mediagen/internal/stream"
)

const pingInterval = 15 * time.Second

// StreamGeneration handles GET /v1/generations/{job_id}/events as a
// Server-Sent Events stream. The first frame is always a status snapshot so
// a client reconnecting after missed events resynchronizes immediately; for
// a job that is already terminal that snapshot is the whole stream.
func (a *App) StreamGeneration(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	sub := a.Hub.Subscribe(job.ID)
	defer sub.Cancel()

	// Re-read after subscribing: a terminal transition that lands between the
	// ownership check and Subscribe closes the job's channel set before this
	// subscription attaches, so the snapshot must carry it. Any transition
	// after this read is delivered through the subscription.
	if fresh, err := a.Jobs.GetByID(r.Context(), job.ID); err == nil {
		job = fresh
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	est := a.Workflow.Progress(job)
	writeSSE(w, stream.Event{
		Type:       stream.EventStatus,
		JobID:      job.ID,
		Status:     string(job.Status),
		Progress:   est.Percent,
		ETASeconds: est.ETASeconds,
	})
	flusher.Flush()

	if job.Status.IsTerminal() {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			writeSSE(w, stream.Event{Type: stream.EventPing})
			flusher.Flush()
		case ev, open := <-sub.C:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev stream.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
