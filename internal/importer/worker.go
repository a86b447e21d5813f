package importer

import (
	"context"
	"errors"
	"log"

	"github.com/squashterm/api/internal/fetcher"
	"github.com/squashterm/api/internal/model"
	"github.com/squashterm/api/internal/store"
)

// ProcessUnit runs one work unit end to end: fetch the item, merge caller
// metadata, persist the tracks, and report the outcome on the job.
// It is safe to call from any goroutine, including asynq task handlers.
func (c *Coordinator) ProcessUnit(jobID string, unit WorkUnit) {
	c.mu.RLock()
	state, ok := c.jobs[jobID]
	c.mu.RUnlock()
	if !ok {
		log.Printf("Job %s: dropping work unit for unknown job", jobID)
		return
	}

	tracks, fetchLog, err := c.fetchUnit(state, unit)
	if err == nil {
		err = c.persistTracks(state, tracks)
	}
	c.recordItem(state, unit, tracks, fetchLog, err)
}

func (c *Coordinator) fetchUnit(state *jobState, unit WorkUnit) ([]model.Track, string, error) {
	jobID := state.job.ID
	ctx := context.Background()

	var res *fetcher.Result
	var err error
	if unit.Streamed {
		res, err = c.fetch.FetchStream(ctx, unit.Ref, func(line string) {
			c.hub.PublishLog(jobID, line)
			if pct, ok := fetcher.ParseProgress(line); ok {
				c.hub.PublishPercent(jobID, pct, "Downloading...")
			}
		})
	} else {
		res, err = c.fetch.Fetch(ctx, unit.Ref)
	}
	if err != nil {
		return nil, "", err
	}

	out := make([]model.Track, 0, len(res.Tracks))
	for _, t := range res.Tracks {
		out = append(out, c.mergeMetadata(state, t))
	}
	return out, res.Log, nil
}

// mergeMetadata applies the job's metadata policy. With auto-tagging the
// fetched metadata is the base and non-empty caller overrides win; without
// it only the caller's values (or Unknown placeholders) are kept.
func (c *Coordinator) mergeMetadata(state *jobState, t model.Track) model.Track {
	opts := state.opts
	if opts.autoTag {
		if opts.title != "" {
			t.Title = opts.title
		}
		if opts.artist != "" {
			t.Artist = opts.artist
		}
		if opts.album != "" {
			t.Album = opts.album
		}
		if opts.genre != "" {
			t.Genre = opts.genre
		}
		return t
	}
	t.Title = orUnknown(opts.title, t.Title)
	t.Artist = fallback(opts.artist, "Unknown Artist")
	t.Album = fallback(opts.album, "Unknown Album")
	t.Genre = fallback(opts.genre, "Unknown")
	return t
}

func (c *Coordinator) persistTracks(state *jobState, tracks []model.Track) error {
	for _, t := range tracks {
		if _, err := c.store.AppendTrack(t); err != nil {
			return err
		}
	}
	if state.opts.playlistID != "" && len(tracks) > 0 {
		ids := make([]string, len(tracks))
		for i, t := range tracks {
			ids[i] = t.ID
		}
		_, err := c.store.AddTracksToPlaylist(state.opts.playlistID, ids)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("Job %s: target playlist %s no longer exists, tracks kept in library", state.job.ID, state.opts.playlistID)
		}
	}
	return nil
}

func orUnknown(override, fetched string) string {
	if override != "" {
		return override
	}
	if fetched != "" {
		return fetched
	}
	return "Unknown Title"
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
