package importer

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolQueueBoundsConcurrency(t *testing.T) {
	q := NewPoolQueue()

	units := make([]WorkUnit, 20)
	for i := range units {
		units[i] = WorkUnit{Ref: "ref"}
	}

	var current, peak int32
	var mu sync.Mutex
	err := q.Dispatch("job_1", units, 3, func(WorkUnit) {
		n := atomic.AddInt32(&current, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		atomic.AddInt32(&current, -1)
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if peak > 3 {
		t.Errorf("concurrency peaked at %d, limit was 3", peak)
	}
}

func TestPoolQueueProcessesEveryUnit(t *testing.T) {
	q := NewPoolQueue()

	units := make([]WorkUnit, 7)
	var processed int32
	err := q.Dispatch("job_1", units, 16, func(WorkUnit) {
		atomic.AddInt32(&processed, 1)
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if processed != 7 {
		t.Errorf("processed %d of 7 units", processed)
	}
}
