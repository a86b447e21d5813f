// Package syncer keeps auto-sync playlists up to date with their remote
// source by periodically diffing the source listing against the playlist
// and importing only the missing items.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/squashterm/api/internal/fetcher"
	"github.com/squashterm/api/internal/importer"
	"github.com/squashterm/api/internal/model"
	"github.com/squashterm/api/internal/store"
)

// ErrSyncInProgress is returned when a sync is requested for a playlist
// that is already being synced.
var ErrSyncInProgress = errors.New("sync already in progress for this playlist")

// ErrSyncNotConfigured is returned when a playlist has no usable sync source.
var ErrSyncNotConfigured = errors.New("playlist has no auto-sync source configured")

// Scheduler wakes up on a fixed poll interval and syncs every playlist
// whose own interval has elapsed. At most one sync runs per playlist at
// any time, scheduled or manual.
type Scheduler struct {
	store       *store.Store
	coord       *importer.Coordinator
	fetch       fetcher.Fetcher
	poll        time.Duration
	minInterval time.Duration

	mu     sync.Mutex
	active map[string]bool
}

// New creates a scheduler. poll is how often due playlists are checked,
// minInterval is the floor applied to per-playlist intervals.
func New(st *store.Store, coord *importer.Coordinator, f fetcher.Fetcher, poll, minInterval time.Duration) *Scheduler {
	if poll <= 0 {
		poll = time.Minute
	}
	if minInterval <= 0 {
		minInterval = time.Minute
	}
	return &Scheduler{
		store:       st,
		coord:       coord,
		fetch:       f,
		poll:        poll,
		minInterval: minInterval,
		active:      make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled, checking for due playlists every poll
// interval.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("Auto-sync scheduler running, polling every %s", s.poll)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Auto-sync scheduler stopped")
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	doc := s.store.Snapshot()
	now := time.Now()
	for _, pl := range doc.Playlists {
		if !s.due(pl, now) {
			continue
		}
		if _, err := s.TriggerSync(ctx, pl.ID); err != nil && !errors.Is(err, ErrSyncInProgress) {
			log.Printf("Auto-sync of playlist %s failed: %v", pl.ID, err)
		}
	}
}

func (s *Scheduler) due(pl model.Playlist, now time.Time) bool {
	if !pl.AutoSyncEnabled || pl.AutoSyncURL == "" {
		return false
	}
	interval := time.Duration(pl.AutoSyncIntervalMinutes) * time.Minute
	if interval < s.minInterval {
		interval = s.minInterval
	}
	if pl.AutoSyncLastRun == "" {
		return true
	}
	last, err := time.Parse(time.RFC3339, pl.AutoSyncLastRun)
	if err != nil {
		return true
	}
	return now.Sub(last) >= interval
}

// TriggerSync starts a sync for one playlist and returns the resulting job
// id, or "" when the playlist was already up to date. It returns once the
// diff has been taken and the import submitted; the import itself runs on
// the coordinator's workers.
func (s *Scheduler) TriggerSync(ctx context.Context, playlistID string) (string, error) {
	s.mu.Lock()
	if s.active[playlistID] {
		s.mu.Unlock()
		return "", ErrSyncInProgress
	}
	s.active[playlistID] = true
	s.mu.Unlock()

	jobID, err := s.sync(ctx, playlistID)
	if err != nil || jobID == "" {
		s.release(playlistID)
		return jobID, err
	}

	// Hold the guard until the import finishes so overlapping syncs of the
	// same playlist cannot race.
	go func() {
		if _, err := s.coord.Wait(jobID); err != nil {
			log.Printf("Sync job %s for playlist %s: %v", jobID, playlistID, err)
		}
		s.record(playlistID, "")
		s.release(playlistID)
	}()
	return jobID, nil
}

func (s *Scheduler) sync(ctx context.Context, playlistID string) (string, error) {
	doc := s.store.Snapshot()
	var pl *model.Playlist
	for i := range doc.Playlists {
		if doc.Playlists[i].ID == playlistID {
			pl = &doc.Playlists[i]
			break
		}
	}
	if pl == nil {
		return "", store.ErrNotFound
	}
	if pl.AutoSyncURL == "" {
		return "", ErrSyncNotConfigured
	}

	log.Printf("Syncing playlist %s (%s) from %s", pl.ID, pl.Name, pl.AutoSyncURL)

	res, err := s.fetch.Resolve(ctx, pl.AutoSyncURL)
	if err != nil {
		s.record(playlistID, fmt.Sprintf("resolve failed: %v", err))
		return "", fmt.Errorf("%w: %v", importer.ErrResolutionFailure, err)
	}

	missing := s.missingRefs(doc, pl, res.Entries)
	if len(missing) == 0 {
		log.Printf("Playlist %s already up to date", pl.ID)
		s.record(playlistID, "")
		return "", nil
	}

	log.Printf("Playlist %s: importing %d new items", pl.ID, len(missing))
	jobID, err := s.coord.SubmitEntries(ctx, missing, playlistID)
	if err != nil {
		s.record(playlistID, fmt.Sprintf("submit failed: %v", err))
		return "", err
	}
	return jobID, nil
}

// missingRefs diffs the source listing against tracks already in the
// playlist, matching on the normalized source URL.
func (s *Scheduler) missingRefs(doc model.Library, pl *model.Playlist, entries []fetcher.Entry) []string {
	inPlaylist := make(map[string]bool, len(pl.TrackIDs))
	for _, id := range pl.TrackIDs {
		inPlaylist[id] = true
	}
	have := make(map[string]bool)
	for _, t := range doc.Tracks {
		if inPlaylist[t.ID] && t.SourceURL != "" {
			have[fetcher.NormalizeSourceURL(t.SourceURL)] = true
		}
	}

	var missing []string
	for _, e := range entries {
		if e.SourceURL == "" {
			continue
		}
		if !have[fetcher.NormalizeSourceURL(e.SourceURL)] {
			missing = append(missing, e.SourceURL)
		}
	}
	return missing
}

func (s *Scheduler) record(playlistID, syncErr string) {
	if err := s.store.RecordSyncResult(playlistID, time.Now(), syncErr); err != nil {
		log.Printf("Failed to record sync result for playlist %s: %v", playlistID, err)
	}
}

func (s *Scheduler) release(playlistID string) {
	s.mu.Lock()
	delete(s.active, playlistID)
	s.mu.Unlock()
}
