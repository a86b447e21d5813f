package model

// ImportRequest starts a single-item import.
type ImportRequest struct {
	URL        string `json:"url" validate:"required,url"`
	PlaylistID string `json:"playlist_id,omitempty"`
	AutoTag    *bool  `json:"auto_tag,omitempty"`

	// Optional caller-supplied metadata. Non-empty fields win over whatever
	// the fetcher extracted.
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Genre  string `json:"genre,omitempty"`
}

// BatchImportRequest starts a whole-playlist import. Concurrency zero means
// "use the configured default"; anything else is clamped to the configured
// ceiling.
type BatchImportRequest struct {
	URL         string `json:"url" validate:"required,url"`
	PlaylistID  string `json:"playlist_id,omitempty"`
	Concurrency int    `json:"concurrency" validate:"omitempty,min=0,max=64"`
	AutoTag     *bool  `json:"auto_tag,omitempty"`
}

// PlaylistCreateRequest creates a playlist, optionally pre-populated and
// configured for auto-sync.
type PlaylistCreateRequest struct {
	Name                    string   `json:"name" validate:"required,min=1,max=200"`
	TrackIDs                []string `json:"track_ids"`
	AutoSyncURL             *string  `json:"auto_sync_url,omitempty"`
	AutoSyncIntervalMinutes *int     `json:"auto_sync_interval_minutes,omitempty" validate:"omitempty,min=1"`
	AutoSyncEnabled         *bool    `json:"auto_sync_enabled,omitempty"`
}

// PlaylistUpdateRequest updates any combination of name, explicit track
// order, and auto-sync settings. Nil fields are left unchanged.
type PlaylistUpdateRequest struct {
	Name                    *string   `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	TrackIDs                *[]string `json:"track_ids,omitempty"`
	AutoSyncURL             *string   `json:"auto_sync_url,omitempty"`
	AutoSyncIntervalMinutes *int      `json:"auto_sync_interval_minutes,omitempty" validate:"omitempty,min=1"`
	AutoSyncEnabled         *bool     `json:"auto_sync_enabled,omitempty"`
}

// FavoritesUpdateRequest replaces the favorites track-id sequence.
type FavoritesUpdateRequest struct {
	TrackIDs []string `json:"track_ids" validate:"required"`
}

// TrackUpdateRequest edits track metadata.
type TrackUpdateRequest struct {
	Title     *string `json:"title,omitempty"`
	Artist    *string `json:"artist,omitempty"`
	Album     *string `json:"album,omitempty"`
	Genre     *string `json:"genre,omitempty"`
	SourceURL *string `json:"source_url,omitempty"`
}
