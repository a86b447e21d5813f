// Package stream fans a job's progress events out to its subscribers. A job
// publishes regardless of whether anyone is listening: events are buffered
// from job creation, so a subscriber attaching right after submission
// replays the full history and then follows live. A dropped connection
// never affects the job.
package stream

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/squashterm/api/internal/model"
)

// ErrUnknownJob is returned when subscribing to a job the hub has never
// seen.
var ErrUnknownJob = errors.New("unknown job")

const (
	subscriberBuffer = 256

	// closedRetention is how long a terminal job's event history remains
	// subscribable.
	closedRetention = time.Minute
)

// Subscriber receives a job's event frames. Send is closed once the job is
// terminal and all buffered events were delivered.
type Subscriber struct {
	JobID string
	Send  chan []byte
}

type jobStream struct {
	events [][]byte
	subs   map[*Subscriber]bool
	closed bool
}

// Hub multiplexes job event streams.
type Hub struct {
	mu   sync.Mutex
	jobs map[string]*jobStream
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{jobs: make(map[string]*jobStream)}
}

// OpenJob starts buffering events for a job. Must be called before the
// job's first publish.
func (h *Hub) OpenJob(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.jobs[jobID]; !ok {
		h.jobs[jobID] = &jobStream{subs: make(map[*Subscriber]bool)}
	}
}

// CloseJob marks the job's stream terminal: subscriber channels are closed
// after delivery. The buffered history stays around briefly so a client
// attaching just after completion still receives the full stream.
func (h *Hub) CloseJob(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	js, ok := h.jobs[jobID]
	if !ok || js.closed {
		return
	}
	js.closed = true
	for sub := range js.subs {
		close(sub.Send)
	}
	js.subs = make(map[*Subscriber]bool)
	time.AfterFunc(closedRetention, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.jobs[jobID]; ok && cur.closed {
			delete(h.jobs, jobID)
		}
	})
}

// Subscribe attaches to a job's stream. The full event history is replayed
// into the subscriber channel before any live event. Subscribing to an
// already-terminal job yields the history followed by channel close.
func (h *Hub) Subscribe(jobID string) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	js, ok := h.jobs[jobID]
	if !ok {
		return nil, ErrUnknownJob
	}
	sub := &Subscriber{
		JobID: jobID,
		Send:  make(chan []byte, len(js.events)+subscriberBuffer),
	}
	for _, frame := range js.events {
		sub.Send <- frame
	}
	if js.closed {
		close(sub.Send)
		return sub, nil
	}
	js.subs[sub] = true
	return sub, nil
}

// Unsubscribe detaches a subscriber; the job keeps running.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	js, ok := h.jobs[sub.JobID]
	if !ok {
		return
	}
	if js.subs[sub] {
		delete(js.subs, sub)
		close(sub.Send)
	}
}

func (h *Hub) publish(jobID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal event for job %s: %v", jobID, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	js, ok := h.jobs[jobID]
	if !ok || js.closed {
		return
	}
	js.events = append(js.events, data)
	for sub := range js.subs {
		select {
		case sub.Send <- data:
		default:
			// Slow subscriber: drop it rather than stall the job.
			delete(js.subs, sub)
			close(sub.Send)
		}
	}
}

// PublishPlaylistInfo announces the discovered item total.
func (h *Hub) PublishPlaylistInfo(jobID string, total int, message string) {
	h.publish(jobID, model.PlaylistInfoEvent{
		Type:    model.EventTypePlaylistInfo,
		Total:   total,
		Message: message,
	})
}

// PublishLog sends one line of progress narration.
func (h *Hub) PublishLog(jobID, message string) {
	h.publish(jobID, model.LogEvent{Type: model.EventTypeLog, Message: message})
}

// PublishPercent sends a percentage progress update for a single download.
func (h *Hub) PublishPercent(jobID string, value float64, message string) {
	h.publish(jobID, model.ProgressEvent{
		Type:    model.EventTypeProgress,
		Value:   &value,
		Total:   1,
		Message: message,
	})
}

// PublishCounters sends batch progress counters.
func (h *Hub) PublishCounters(jobID string, completed, failed, total int, message string) {
	h.publish(jobID, model.ProgressEvent{
		Type:      model.EventTypeProgress,
		Completed: completed,
		Failed:    failed,
		Total:     total,
		Message:   message,
	})
}

// PublishError reports a per-item or terminal failure.
func (h *Hub) PublishError(jobID, message string) {
	h.publish(jobID, model.ErrorEvent{Type: model.EventTypeError, Message: message})
}

// PublishComplete marks the job done with its final counters.
func (h *Hub) PublishComplete(jobID string, completed, failed, total int, tracks []model.Track) {
	if tracks == nil {
		tracks = []model.Track{}
	}
	h.publish(jobID, model.CompleteEvent{
		Type:      model.EventTypeComplete,
		Completed: completed,
		Failed:    failed,
		Total:     total,
		Tracks:    tracks,
	})
}
