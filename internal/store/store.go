// Package store holds the durable library document: tracks, playlists and
// the favorites list, persisted as a single JSON file.
//
// Every mutation is funneled through one owning goroutine, so mutating
// operations are linearizable with respect to each other and the
// read-modify-write race between concurrent workers cannot happen. Reads
// serve the last committed snapshot and never block on writers.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/squashterm/api/internal/model"
)

// ErrNotFound is returned when a track or playlist id does not exist.
var ErrNotFound = errors.New("not found")

type opResult struct {
	value any
	err   error
}

type op struct {
	apply func(doc *model.Library) (any, error)
	reply chan opResult
}

// Store owns the library document.
type Store struct {
	path     string
	ops      chan op
	snapshot atomic.Pointer[model.Library]

	closeOnce sync.Once
	done      chan struct{}
}

// Open loads the document at path, creating an empty one if it does not
// exist, and starts the owning goroutine.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	doc := &model.Library{
		Tracks:    []model.Track{},
		Playlists: []model.Playlist{},
		Favorites: []string{},
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("parse library document: %w", err)
		}
	case os.IsNotExist(err):
		// First run, start from the empty document.
	default:
		return nil, fmt.Errorf("read library document: %w", err)
	}

	s := &Store{
		path: path,
		ops:  make(chan op),
		done: make(chan struct{}),
	}
	s.snapshot.Store(doc)
	if err := s.persist(doc); err != nil {
		return nil, err
	}
	go s.run(doc)
	return s, nil
}

// Close stops the owning goroutine. Operations submitted after Close fail
// with an error rather than blocking.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Store) run(doc *model.Library) {
	for {
		select {
		case <-s.done:
			return
		case o := <-s.ops:
			next := doc.Clone()
			value, err := o.apply(next)
			if err == nil {
				if perr := s.persist(next); perr != nil {
					err = perr
				} else {
					doc = next
					s.snapshot.Store(next)
				}
			}
			o.reply <- opResult{value: value, err: err}
		}
	}
}

// persist writes the document to a temp file in the same directory and
// renames it over the target, so readers never observe a partial write.
func (s *Store) persist(doc *model.Library) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode library document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".library-*.json")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace library document: %w", err)
	}
	return nil
}

func (s *Store) do(apply func(doc *model.Library) (any, error)) (any, error) {
	o := op{apply: apply, reply: make(chan opResult, 1)}
	select {
	case s.ops <- o:
	case <-s.done:
		return nil, errors.New("store closed")
	}
	res := <-o.reply
	return res.value, res.err
}

// Snapshot returns a copy of the last committed document. Playlist and
// favorites track-id lists are filtered of ids that no longer exist in the
// track set.
func (s *Store) Snapshot() model.Library {
	doc := s.snapshot.Load().Clone()
	known := make(map[string]bool, len(doc.Tracks))
	for _, t := range doc.Tracks {
		known[t.ID] = true
	}
	for i := range doc.Playlists {
		doc.Playlists[i].TrackIDs = filterKnown(doc.Playlists[i].TrackIDs, known)
	}
	doc.Favorites = filterKnown(doc.Favorites, known)
	return *doc
}

func filterKnown(ids []string, known map[string]bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if known[id] {
			out = append(out, id)
		}
	}
	return out
}

// AppendTrack stores a new track. If a track with the same id already
// exists, the existing record keeps its identity and only an empty cover or
// source_url is backfilled from the new data. Returns the stored record.
func (s *Store) AppendTrack(track model.Track) (model.Track, error) {
	v, err := s.do(func(doc *model.Library) (any, error) {
		for i := range doc.Tracks {
			if doc.Tracks[i].ID != track.ID {
				continue
			}
			if track.Cover != "" && doc.Tracks[i].Cover == "" {
				doc.Tracks[i].Cover = track.Cover
			}
			if track.SourceURL != "" && doc.Tracks[i].SourceURL == "" {
				doc.Tracks[i].SourceURL = track.SourceURL
			}
			return doc.Tracks[i], nil
		}
		doc.Tracks = append(doc.Tracks, track)
		return track, nil
	})
	if err != nil {
		return model.Track{}, err
	}
	return v.(model.Track), nil
}

// UpdateTrack applies a metadata patch to an existing track.
func (s *Store) UpdateTrack(id string, patch model.TrackPatch) (model.Track, error) {
	v, err := s.do(func(doc *model.Library) (any, error) {
		for i := range doc.Tracks {
			if doc.Tracks[i].ID != id {
				continue
			}
			t := &doc.Tracks[i]
			if patch.Title != nil {
				t.Title = *patch.Title
			}
			if patch.Artist != nil {
				t.Artist = *patch.Artist
			}
			if patch.Album != nil {
				t.Album = *patch.Album
			}
			if patch.Genre != nil {
				t.Genre = *patch.Genre
			}
			if patch.SourceURL != nil {
				t.SourceURL = *patch.SourceURL
			}
			return *t, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return model.Track{}, err
	}
	return v.(model.Track), nil
}

// DeleteTrack removes a track and scrubs its id from the favorites list and
// every playlist. The removed record is returned so callers can clean up
// media files.
func (s *Store) DeleteTrack(id string) (model.Track, error) {
	v, err := s.do(func(doc *model.Library) (any, error) {
		idx := -1
		for i := range doc.Tracks {
			if doc.Tracks[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrNotFound
		}
		removed := doc.Tracks[idx]
		doc.Tracks = append(doc.Tracks[:idx], doc.Tracks[idx+1:]...)
		doc.Favorites = remove(doc.Favorites, id)
		for i := range doc.Playlists {
			doc.Playlists[i].TrackIDs = remove(doc.Playlists[i].TrackIDs, id)
		}
		return removed, nil
	})
	if err != nil {
		return model.Track{}, err
	}
	return v.(model.Track), nil
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// CreatePlaylist creates a playlist with a fresh id.
func (s *Store) CreatePlaylist(name string, trackIDs []string, settings model.PlaylistSettingsPatch) (model.Playlist, error) {
	v, err := s.do(func(doc *model.Library) (any, error) {
		pl := model.Playlist{
			ID:       "pl_" + uuid.New().String(),
			Name:     name,
			TrackIDs: dedup(trackIDs),
		}
		applySettings(&pl, settings)
		if pl.AutoSyncURL != "" && pl.AutoSyncIntervalMinutes > 0 && settings.AutoSyncEnabled == nil {
			pl.AutoSyncEnabled = true
		}
		doc.Playlists = append(doc.Playlists, pl)
		return pl, nil
	})
	if err != nil {
		return model.Playlist{}, err
	}
	return v.(model.Playlist), nil
}

// ReplacePlaylistTracks replaces a playlist's track-id order wholesale.
// Duplicate ids keep their first occurrence.
func (s *Store) ReplacePlaylistTracks(playlistID string, orderedIDs []string) (model.Playlist, error) {
	v, err := s.do(func(doc *model.Library) (any, error) {
		pl := findPlaylist(doc, playlistID)
		if pl == nil {
			return nil, ErrNotFound
		}
		pl.TrackIDs = dedup(orderedIDs)
		return *pl, nil
	})
	if err != nil {
		return model.Playlist{}, err
	}
	return v.(model.Playlist), nil
}

// AddTracksToPlaylist appends track ids the playlist does not already
// contain, keeping existing order. Adding an already-present id is a no-op.
func (s *Store) AddTracksToPlaylist(playlistID string, trackIDs []string) (model.Playlist, error) {
	v, err := s.do(func(doc *model.Library) (any, error) {
		pl := findPlaylist(doc, playlistID)
		if pl == nil {
			return nil, ErrNotFound
		}
		present := make(map[string]bool, len(pl.TrackIDs))
		for _, id := range pl.TrackIDs {
			present[id] = true
		}
		for _, id := range trackIDs {
			if !present[id] {
				pl.TrackIDs = append(pl.TrackIDs, id)
				present[id] = true
			}
		}
		return *pl, nil
	})
	if err != nil {
		return model.Playlist{}, err
	}
	return v.(model.Playlist), nil
}

// UpdatePlaylistSettings applies a settings patch. Clearing the auto-sync
// URL also disables auto-sync and resets its run state.
func (s *Store) UpdatePlaylistSettings(playlistID string, settings model.PlaylistSettingsPatch) (model.Playlist, error) {
	v, err := s.do(func(doc *model.Library) (any, error) {
		pl := findPlaylist(doc, playlistID)
		if pl == nil {
			return nil, ErrNotFound
		}
		applySettings(pl, settings)
		return *pl, nil
	})
	if err != nil {
		return model.Playlist{}, err
	}
	return v.(model.Playlist), nil
}

// DeletePlaylist removes the playlist. Tracks it referenced are untouched.
func (s *Store) DeletePlaylist(playlistID string) error {
	_, err := s.do(func(doc *model.Library) (any, error) {
		for i := range doc.Playlists {
			if doc.Playlists[i].ID == playlistID {
				doc.Playlists = append(doc.Playlists[:i], doc.Playlists[i+1:]...)
				return nil, nil
			}
		}
		return nil, ErrNotFound
	})
	return err
}

// ReplaceFavorites replaces the favorites track-id sequence.
func (s *Store) ReplaceFavorites(orderedIDs []string) ([]string, error) {
	v, err := s.do(func(doc *model.Library) (any, error) {
		doc.Favorites = dedup(orderedIDs)
		return doc.Favorites, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// RecordSyncResult stamps a playlist's auto-sync run state.
func (s *Store) RecordSyncResult(playlistID string, ranAt time.Time, syncErr string) error {
	_, err := s.do(func(doc *model.Library) (any, error) {
		pl := findPlaylist(doc, playlistID)
		if pl == nil {
			return nil, ErrNotFound
		}
		pl.AutoSyncLastRun = ranAt.UTC().Format(time.RFC3339)
		pl.AutoSyncLastError = syncErr
		return nil, nil
	})
	return err
}

func findPlaylist(doc *model.Library, id string) *model.Playlist {
	for i := range doc.Playlists {
		if doc.Playlists[i].ID == id {
			return &doc.Playlists[i]
		}
	}
	return nil
}

func applySettings(pl *model.Playlist, settings model.PlaylistSettingsPatch) {
	if settings.Name != nil {
		pl.Name = *settings.Name
	}
	if settings.AutoSyncURL != nil {
		pl.AutoSyncURL = *settings.AutoSyncURL
		if pl.AutoSyncURL == "" {
			pl.AutoSyncEnabled = false
			pl.AutoSyncLastRun = ""
			pl.AutoSyncLastError = ""
		}
	}
	if settings.AutoSyncIntervalMinutes != nil && *settings.AutoSyncIntervalMinutes > 0 {
		pl.AutoSyncIntervalMinutes = *settings.AutoSyncIntervalMinutes
	}
	if settings.AutoSyncEnabled != nil {
		pl.AutoSyncEnabled = *settings.AutoSyncEnabled
	}
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
