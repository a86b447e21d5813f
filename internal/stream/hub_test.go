package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/squashterm/api/internal/model"
)

func decodeEvent(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(frame, &out); err != nil {
		t.Fatalf("frame is not JSON: %v\nframe: %s", err, frame)
	}
	return out
}

func collect(t *testing.T, sub *Subscriber, n int) []map[string]any {
	t.Helper()
	var out []map[string]any
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case frame, ok := <-sub.Send:
			if !ok {
				t.Fatalf("channel closed after %d of %d events", len(out), n)
			}
			out = append(out, decodeEvent(t, frame))
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPublishOrderPreserved(t *testing.T) {
	h := NewHub()
	h.OpenJob("job_1")

	sub, err := h.Subscribe("job_1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer h.Unsubscribe(sub)

	h.PublishPlaylistInfo("job_1", 3, "Discovered 3 items")
	h.PublishLog("job_1", "starting")
	h.PublishCounters("job_1", 1, 0, 3, "")
	h.PublishCounters("job_1", 2, 0, 3, "")
	h.PublishComplete("job_1", 3, 0, 3, nil)

	events := collect(t, sub, 5)
	wantTypes := []string{"playlist_info", "log", "progress", "progress", "complete"}
	for i, want := range wantTypes {
		if events[i]["type"] != want {
			t.Errorf("event %d: type %v, want %s", i, events[i]["type"], want)
		}
	}
	if events[0]["total"].(float64) != 3 {
		t.Errorf("playlist_info total = %v", events[0]["total"])
	}
	last := events[4]
	if last["completed"].(float64) != 3 || last["failed"].(float64) != 0 {
		t.Errorf("complete counters wrong: %v", last)
	}
	if last["tracks"] == nil {
		t.Errorf("complete must carry a tracks array, got null")
	}
}

func TestLateSubscriberReplaysHistory(t *testing.T) {
	h := NewHub()
	h.OpenJob("job_1")

	h.PublishPlaylistInfo("job_1", 2, "")
	h.PublishCounters("job_1", 1, 0, 2, "")

	sub, err := h.Subscribe("job_1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer h.Unsubscribe(sub)

	h.PublishComplete("job_1", 2, 0, 2, nil)

	events := collect(t, sub, 3)
	if events[0]["type"] != "playlist_info" || events[2]["type"] != "complete" {
		t.Errorf("history not replayed before live events: %v", events)
	}
}

func TestSubscribeAfterCloseGetsFullStreamThenClose(t *testing.T) {
	h := NewHub()
	h.OpenJob("job_1")
	h.PublishLog("job_1", "working")
	h.PublishComplete("job_1", 1, 0, 1, nil)
	h.CloseJob("job_1")

	sub, err := h.Subscribe("job_1")
	if err != nil {
		t.Fatalf("subscribe after close failed: %v", err)
	}
	events := collect(t, sub, 2)
	if events[1]["type"] != "complete" {
		t.Errorf("expected complete last, got %v", events)
	}
	select {
	case _, ok := <-sub.Send:
		if ok {
			t.Errorf("expected closed channel after history replay")
		}
	case <-time.After(time.Second):
		t.Errorf("channel not closed after history replay")
	}
}

func TestSubscribeUnknownJob(t *testing.T) {
	h := NewHub()
	if _, err := h.Subscribe("job_missing"); err != ErrUnknownJob {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestSlowSubscriberDroppedJobUnaffected(t *testing.T) {
	h := NewHub()
	h.OpenJob("job_1")

	slow, err := h.Subscribe("job_1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Nobody drains slow; overflow its buffer.
	for i := 0; i < subscriberBuffer+10; i++ {
		h.PublishLog("job_1", "line")
	}

	// The slow subscriber's channel must have been closed by the hub.
	drained := 0
	for range slow.Send {
		drained++
	}
	if drained > subscriberBuffer {
		t.Errorf("slow subscriber received more than its buffer: %d", drained)
	}

	// A fresh subscriber still sees the whole history.
	fresh, err := h.Subscribe("job_1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer h.Unsubscribe(fresh)
	collect(t, fresh, subscriberBuffer+10)
}

func TestCloseJobClosesSubscribers(t *testing.T) {
	h := NewHub()
	h.OpenJob("job_1")
	sub, err := h.Subscribe("job_1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	h.PublishComplete("job_1", 1, 0, 1, []model.Track{{ID: "yt_a"}})
	h.CloseJob("job_1")

	events := collect(t, sub, 1)
	if events[0]["type"] != "complete" {
		t.Fatalf("expected complete, got %v", events[0])
	}
	select {
	case _, ok := <-sub.Send:
		if ok {
			t.Errorf("expected channel close after CloseJob")
		}
	case <-time.After(time.Second):
		t.Errorf("channel not closed after CloseJob")
	}
}

func TestWriteFrameFormat(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteFrame(w, []byte(`{"type":"log","message":"hi"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	want := "data: {\"type\":\"log\",\"message\":\"hi\"}\n\n"
	if buf.String() != want {
		t.Errorf("frame = %q, want %q", buf.String(), want)
	}
}
