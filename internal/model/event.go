package model

// Event types pushed over a job's progress stream
const (
	EventTypePlaylistInfo = "playlist_info"
	EventTypeLog          = "log"
	EventTypeProgress     = "progress"
	EventTypeError        = "error"
	EventTypeComplete     = "complete"
)

// PlaylistInfoEvent announces the number of items discovered during
// resolution. It is the first quantitative event of a batch job and total is
// fixed for the rest of the job.
type PlaylistInfoEvent struct {
	Type    string `json:"type"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// LogEvent carries one line of human-readable progress narration.
type LogEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ProgressEvent is a quantitative progress update: either a percentage value
// for a single download, or completed/failed counters for a batch.
type ProgressEvent struct {
	Type      string   `json:"type"`
	Value     *float64 `json:"value,omitempty"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Total     int      `json:"total"`
	Message   string   `json:"message,omitempty"`
}

// ErrorEvent reports a recoverable per-item failure or a terminal job
// failure.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CompleteEvent marks the job terminal and carries the final counters plus
// the tracks stored by the job.
type CompleteEvent struct {
	Type      string  `json:"type"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Total     int     `json:"total"`
	Tracks    []Track `json:"tracks"`
}
