package importer

import "sync"

// WorkUnit is the unit of work for one media item within a job.
type WorkUnit struct {
	Ref      string `json:"ref"`
	Streamed bool   `json:"streamed"`
}

// Queue executes a job's work units. Dispatch returns once all units have
// been handed to executors; unit completion is tracked by the coordinator's
// counters, not by Dispatch.
type Queue interface {
	Dispatch(jobID string, units []WorkUnit, concurrency int, process func(WorkUnit)) error
}

// poolQueue runs work units on a bounded pool of goroutines, one pool per
// job. Workers pull from the queue until it is exhausted, so a stalled unit
// only occupies its own slot.
type poolQueue struct{}

// NewPoolQueue returns the default in-process queue backend.
func NewPoolQueue() Queue {
	return poolQueue{}
}

func (poolQueue) Dispatch(jobID string, units []WorkUnit, concurrency int, process func(WorkUnit)) error {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(units) {
		concurrency = len(units)
	}

	queue := make(chan WorkUnit)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range queue {
				process(unit)
			}
		}()
	}
	for _, unit := range units {
		queue <- unit
	}
	close(queue)
	wg.Wait()
	return nil
}
