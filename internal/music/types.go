package music

import (
	"context"
	"time"
)

type Track struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	TrackNumber  int        `json:"track_number"`
	DiscNumber   int        `json:"disc_number"`
	DurationMS   int64      `json:"duration_ms"`
	Artists      []string   `json:"artists"`
	Album        string     `json:"album"`
	AlbumID      string     `json:"album_id,omitempty"`
	AlbumArtists []string   `json:"album_artists"`
	URI          string     `json:"uri"`
	AddedAt      *time.Time `json:"added_at,omitempty"`
	ReleaseDate  string     `json:"release_date"`
}

// Duration returns the track length.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMS) * time.Millisecond
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Track) Clone() Track {
	c := t
	if t.Artists != nil {
		c.Artists = append([]string(nil), t.Artists...)
	}
	if t.AlbumArtists != nil {
		c.AlbumArtists = append([]string(nil), t.AlbumArtists...)
	}
	if t.AddedAt != nil {
		at := *t.AddedAt
		c.AddedAt = &at
	}
	return c
}

type PlaylistSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SnapshotID string `json:"snapshot_id"`
	TrackCount int    `json:"track_count"`
}

// Catalog is the read side of the streaming backend.
type Catalog interface {
	ResolveTrack(ctx context.Context, id string) (Track, error)
	UserPlaylists(ctx context.Context) ([]PlaylistSummary, error)
	PlaylistTracks(ctx context.Context, playlist PlaylistSummary) ([]Track, error)
	CurrentUserID(ctx context.Context) (string, error)
}
