// Package fetcher is the media-acquisition capability: it resolves a source
// reference into downloadable items and retrieves audio, artwork and
// extracted metadata. The import engine depends only on the Fetcher
// interface; the shipped implementation shells out to yt-dlp.
package fetcher

import (
	"context"

	"github.com/squashterm/api/internal/model"
)

// Entry is one item discovered while resolving a collection reference.
type Entry struct {
	ID        string
	Title     string
	SourceURL string
}

// Resolution describes what a source reference denotes.
type Resolution struct {
	// Collection is true when the reference enumerates more than one item or
	// is structurally a playlist reference.
	Collection bool
	Entries    []Entry
}

// Result is the outcome of fetching one reference.
type Result struct {
	Tracks []model.Track
	Log    string
}

// Fetcher resolves and retrieves media items.
type Fetcher interface {
	// Resolve enumerates the items a reference denotes without downloading
	// anything.
	Resolve(ctx context.Context, ref string) (*Resolution, error)

	// Fetch downloads the item's audio and artwork and returns the stored
	// tracks with extracted metadata.
	Fetch(ctx context.Context, ref string) (*Result, error)

	// FetchStream behaves like Fetch but reports raw progress lines through
	// onLine as the download runs.
	FetchStream(ctx context.Context, ref string, onLine func(line string)) (*Result, error)
}
