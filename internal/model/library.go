package model

// Track is one audio item in the library. The id is assigned when the track
// is first stored and never changes afterwards, even if metadata is edited.
type Track struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	Cover     string `json:"cover"`
	Duration  string `json:"duration"`
	BPM       int    `json:"bpm"`
	Genre     string `json:"genre"`
	Year      int    `json:"year"`
	FileURL   string `json:"file_url,omitempty"`
	SourceURL string `json:"source_url,omitempty"`

	// FilePath is the absolute path of the stored media file. It is persisted
	// in the library document but not meant for clients.
	FilePath string `json:"file_path,omitempty"`
}

// Playlist is an ordered list of track ids plus optional auto-sync settings.
type Playlist struct {
	ID                      string   `json:"id"`
	Name                    string   `json:"name"`
	TrackIDs                []string `json:"track_ids"`
	AutoSyncURL             string   `json:"auto_sync_url,omitempty"`
	AutoSyncIntervalMinutes int      `json:"auto_sync_interval_minutes,omitempty"`
	AutoSyncEnabled         bool     `json:"auto_sync_enabled"`
	AutoSyncLastRun         string   `json:"auto_sync_last_run,omitempty"`
	AutoSyncLastError       string   `json:"auto_sync_last_error,omitempty"`
}

// Library is the full durable document: every track, playlist, and the
// favorites list.
type Library struct {
	Tracks    []Track    `json:"tracks"`
	Playlists []Playlist `json:"playlists"`
	Favorites []string   `json:"favorites"`
}

// Clone returns a deep copy of the document.
func (l *Library) Clone() *Library {
	out := &Library{
		Tracks:    make([]Track, len(l.Tracks)),
		Playlists: make([]Playlist, len(l.Playlists)),
		Favorites: append([]string(nil), l.Favorites...),
	}
	copy(out.Tracks, l.Tracks)
	for i, p := range l.Playlists {
		p.TrackIDs = append([]string(nil), p.TrackIDs...)
		out.Playlists[i] = p
	}
	return out
}

// TrackPatch holds the metadata fields a client may edit on a track.
// Nil means "leave unchanged".
type TrackPatch struct {
	Title     *string `json:"title,omitempty"`
	Artist    *string `json:"artist,omitempty"`
	Album     *string `json:"album,omitempty"`
	Genre     *string `json:"genre,omitempty"`
	SourceURL *string `json:"source_url,omitempty"`
}

// PlaylistSettingsPatch holds the mutable playlist settings. Nil means
// "leave unchanged".
type PlaylistSettingsPatch struct {
	Name                    *string `json:"name,omitempty"`
	AutoSyncURL             *string `json:"auto_sync_url,omitempty"`
	AutoSyncIntervalMinutes *int    `json:"auto_sync_interval_minutes,omitempty"`
	AutoSyncEnabled         *bool   `json:"auto_sync_enabled,omitempty"`
}
