// Package importer drives library acquisition jobs: it accepts import
// requests, resolves them into work units, runs them on a bounded worker
// pool, persists the results, and publishes ordered progress events.
package importer

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/squashterm/api/internal/fetcher"
	"github.com/squashterm/api/internal/model"
	"github.com/squashterm/api/internal/store"
	"github.com/squashterm/api/internal/stream"
)

// Config bounds the coordinator's resource use.
type Config struct {
	DefaultConcurrency int
	MaxConcurrency     int
}

// jobOptions carries per-job behavior decided at submission time.
type jobOptions struct {
	playlistID string
	autoTag    bool
	title      string
	artist     string
	album      string
	genre      string
}

// jobState is the runtime side of a job: the API-visible record plus
// everything the workers need.
type jobState struct {
	mu     sync.Mutex
	job    model.Job
	opts   jobOptions
	tracks []model.Track
	logs   []string

	// done closes when every work unit reported a terminal outcome;
	// finished closes once the job record itself is terminal.
	done     chan struct{}
	finished chan struct{}
	closed   bool
}

// Coordinator owns job lifecycles and the worker pool.
type Coordinator struct {
	store *store.Store
	fetch fetcher.Fetcher
	hub   *stream.Hub
	queue Queue
	cfg   Config

	mu   sync.RWMutex
	jobs map[string]*jobState

	// Optional mirror of job counters into Redis, used with the asynq
	// queue backend.
	rdb *redis.Client
}

// NewCoordinator wires a coordinator. A nil queue selects the in-process
// pool backend.
func NewCoordinator(st *store.Store, f fetcher.Fetcher, hub *stream.Hub, cfg Config, queue Queue) *Coordinator {
	if cfg.DefaultConcurrency < 1 {
		cfg.DefaultConcurrency = 5
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 10
	}
	if queue == nil {
		queue = NewPoolQueue()
	}
	return &Coordinator{
		store: st,
		fetch: f,
		hub:   hub,
		queue: queue,
		cfg:   cfg,
		jobs:  make(map[string]*jobState),
	}
}

// SetCounterMirror makes the coordinator mirror job counters into a Redis
// hash, so external queue workers can report progress the same way.
func (c *Coordinator) SetCounterMirror(rdb *redis.Client) {
	c.rdb = rdb
}

// SubmitSingle accepts a single-item import and returns its job id.
func (c *Coordinator) SubmitSingle(ctx context.Context, req model.ImportRequest) (string, error) {
	if err := validateRef(req.URL); err != nil {
		return "", err
	}
	state := c.newJob(model.JobKindSingle, 1, req.PlaylistID, 1, jobOptions{
		playlistID: req.PlaylistID,
		autoTag:    req.AutoTag == nil || *req.AutoTag,
		title:      req.Title,
		artist:     req.Artist,
		album:      req.Album,
		genre:      req.Genre,
	})
	go c.runSingle(state, strings.TrimSpace(req.URL))
	return state.job.ID, nil
}

// SubmitBatch accepts a whole-collection import. Resolution happens inside
// the job; the first quantitative event on its stream is playlist_info.
func (c *Coordinator) SubmitBatch(ctx context.Context, req model.BatchImportRequest) (string, error) {
	if err := validateRef(req.URL); err != nil {
		return "", err
	}
	concurrency := c.clamp(req.Concurrency)
	state := c.newJob(model.JobKindBatch, 0, req.PlaylistID, concurrency, jobOptions{
		playlistID: req.PlaylistID,
		autoTag:    req.AutoTag == nil || *req.AutoTag,
	})
	go c.runBatch(state, strings.TrimSpace(req.URL))
	return state.job.ID, nil
}

// SubmitEntries starts a batch job over an already-resolved list of item
// references. The auto-sync scheduler uses this to import exactly the items
// missing from a playlist.
func (c *Coordinator) SubmitEntries(ctx context.Context, refs []string, playlistID string) (string, error) {
	if len(refs) == 0 {
		return "", fmt.Errorf("%w: no items to import", ErrInvalidRequest)
	}
	concurrency := c.clamp(0)
	state := c.newJob(model.JobKindBatch, len(refs), playlistID, concurrency, jobOptions{
		playlistID: playlistID,
		autoTag:    true,
	})
	go func() {
		c.markRunning(state)
		c.hub.PublishPlaylistInfo(state.job.ID, len(refs), fmt.Sprintf("Importing %d new items", len(refs)))
		units := make([]WorkUnit, len(refs))
		for i, ref := range refs {
			units[i] = WorkUnit{Ref: ref}
		}
		c.execute(state, units, concurrency)
	}()
	return state.job.ID, nil
}

// GetJob returns a copy of the job record.
func (c *Coordinator) GetJob(id string) (model.Job, error) {
	c.mu.RLock()
	state, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	job := state.job
	job.Items = append([]model.ItemStatus(nil), state.job.Items...)
	return job, nil
}

// Result returns the tracks a job has imported so far and its combined
// fetch log. Meant to be read after Wait.
func (c *Coordinator) Result(id string) ([]model.Track, string, error) {
	c.mu.RLock()
	state, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return nil, "", ErrJobNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	tracks := append([]model.Track(nil), state.tracks...)
	return tracks, strings.Join(state.logs, "\n"), nil
}

// Wait blocks until the job is terminal and returns its final record.
func (c *Coordinator) Wait(id string) (model.Job, error) {
	c.mu.RLock()
	state, ok := c.jobs[id]
	c.mu.RUnlock()
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	<-state.finished
	return c.GetJob(id)
}

func (c *Coordinator) newJob(kind model.JobKind, total int, playlistID string, concurrency int, opts jobOptions) *jobState {
	now := time.Now()
	state := &jobState{
		job: model.Job{
			ID:          "job_" + uuid.New().String(),
			Kind:        kind,
			Status:      model.JobStatusQueued,
			Total:       total,
			PlaylistID:  playlistID,
			Concurrency: concurrency,
			CreatedAt:   now,
		},
		opts:     opts,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	c.mu.Lock()
	c.jobs[state.job.ID] = state
	c.mu.Unlock()
	c.hub.OpenJob(state.job.ID)
	return state
}

func (c *Coordinator) runSingle(state *jobState, ref string) {
	c.markRunning(state)
	c.hub.PublishLog(state.job.ID, "Preparing download...")
	c.execute(state, []WorkUnit{{Ref: ref, Streamed: true}}, 1)
}

func (c *Coordinator) runBatch(state *jobState, ref string) {
	c.markRunning(state)
	jobID := state.job.ID
	c.hub.PublishLog(jobID, "Resolving source reference...")

	res, err := c.fetch.Resolve(context.Background(), ref)
	if err != nil {
		c.failResolution(state, fmt.Errorf("%w: %v", ErrResolutionFailure, err))
		return
	}

	if !res.Collection {
		c.hub.PublishLog(jobID, "Detected a single item")
	} else {
		c.hub.PublishLog(jobID, fmt.Sprintf("Detected a collection of %d items", len(res.Entries)))
	}

	total := len(res.Entries)
	c.setTotal(state, total)
	c.hub.PublishPlaylistInfo(jobID, total, fmt.Sprintf("Discovered %d items", total))

	units := make([]WorkUnit, total)
	for i, entry := range res.Entries {
		units[i] = WorkUnit{Ref: entry.SourceURL, Streamed: !res.Collection}
	}
	c.execute(state, units, state.job.Concurrency)
}

// completeEmpty terminates a job that has nothing to do. Without it a
// zero-unit job would wait forever for a work unit that never reports.
func (c *Coordinator) completeEmpty(state *jobState) {
	state.mu.Lock()
	if !state.closed {
		state.closed = true
		close(state.done)
	}
	state.mu.Unlock()
	c.finalize(state)
}

// execute hands the units to the queue backend and finalizes the job once
// every unit reported a terminal status.
func (c *Coordinator) execute(state *jobState, units []WorkUnit, concurrency int) {
	jobID := state.job.ID
	if len(units) == 0 {
		c.completeEmpty(state)
		return
	}
	if err := c.queue.Dispatch(jobID, units, concurrency, func(u WorkUnit) {
		c.ProcessUnit(jobID, u)
	}); err != nil {
		log.Printf("Job %s: queue dispatch failed: %v", jobID, err)
		c.failResolution(state, err)
		return
	}
	<-state.done
	c.finalize(state)
}

func (c *Coordinator) markRunning(state *jobState) {
	state.mu.Lock()
	now := time.Now()
	state.job.Status = model.JobStatusRunning
	state.job.StartedAt = &now
	state.mu.Unlock()
}

func (c *Coordinator) setTotal(state *jobState, total int) {
	state.mu.Lock()
	state.job.Total = total
	state.mu.Unlock()
}

// failResolution terminates a job whose source could not be enumerated:
// an error event, zero completed, no complete event.
func (c *Coordinator) failResolution(state *jobState, err error) {
	jobID := state.job.ID
	state.mu.Lock()
	now := time.Now()
	state.job.Status = model.JobStatusFailed
	state.job.CompletedAt = &now
	if !state.closed {
		state.closed = true
		close(state.done)
	}
	state.mu.Unlock()

	log.Printf("Job %s: resolution failed: %v", jobID, err)
	c.hub.PublishError(jobID, err.Error())
	c.hub.CloseJob(jobID)
	close(state.finished)
}

func (c *Coordinator) finalize(state *jobState) {
	state.mu.Lock()
	if state.job.Terminal() {
		state.mu.Unlock()
		return
	}
	now := time.Now()
	state.job.CompletedAt = &now
	if state.job.Completed == 0 && state.job.Failed > 0 {
		state.job.Status = model.JobStatusFailed
	} else {
		state.job.Status = model.JobStatusSucceeded
	}
	completed, failed, total := state.job.Completed, state.job.Failed, state.job.Total
	tracks := append([]model.Track(nil), state.tracks...)
	state.mu.Unlock()

	c.hub.PublishComplete(state.job.ID, completed, failed, total, tracks)
	c.hub.CloseJob(state.job.ID)
	close(state.finished)
	log.Printf("Job %s finished: %d completed, %d failed of %d", state.job.ID, completed, failed, total)
}

// recordItem registers one work unit's terminal outcome. Counters only ever
// grow and completed+failed never exceeds total.
func (c *Coordinator) recordItem(state *jobState, unit WorkUnit, tracks []model.Track, fetchLog string, itemErr error) {
	jobID := state.job.ID
	state.mu.Lock()
	if fetchLog != "" {
		state.logs = append(state.logs, fetchLog)
	}
	if itemErr != nil {
		state.job.Failed++
		state.job.Items = append(state.job.Items, model.ItemStatus{Ref: unit.Ref, OK: false, Error: itemErr.Error()})
	} else {
		state.job.Completed++
		state.job.Items = append(state.job.Items, model.ItemStatus{Ref: unit.Ref, OK: true})
		state.tracks = append(state.tracks, tracks...)
	}
	completed, failed, total := state.job.Completed, state.job.Failed, state.job.Total
	kind := state.job.Kind
	allDone := total > 0 && completed+failed >= total
	if allDone && !state.closed {
		state.closed = true
		close(state.done)
	}
	state.mu.Unlock()

	if itemErr != nil {
		c.hub.PublishError(jobID, fmt.Sprintf("%s: %v", unit.Ref, itemErr))
	}
	if kind == model.JobKindBatch {
		c.hub.PublishCounters(jobID, completed, failed, total,
			fmt.Sprintf("Downloaded %d/%d (failed: %d)", completed, total, failed))
	}
	c.mirrorCounters(jobID, completed, failed, total)
}

func (c *Coordinator) mirrorCounters(jobID string, completed, failed, total int) {
	if c.rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.rdb.HSet(ctx, "import:job:"+jobID,
			"completed", completed, "failed", failed, "total", total).Err(); err != nil {
			log.Printf("Job %s: counter mirror failed: %v", jobID, err)
		}
	}()
}

func (c *Coordinator) clamp(n int) int {
	if n <= 0 {
		n = c.cfg.DefaultConcurrency
	}
	if n < 1 {
		n = 1
	}
	if n > c.cfg.MaxConcurrency {
		n = c.cfg.MaxConcurrency
	}
	return n
}

func validateRef(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("%w: empty source reference", ErrInvalidRequest)
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: malformed source reference", ErrInvalidRequest)
	}
	return nil
}
