package mpd

import (
	"fmt"
	"strings"
	"time"

	"github.com/hxnx/spotmpd/internal/music"
	"github.com/hxnx/spotmpd/internal/playback"
)

const epochTimestamp = "1970-01-01T00:00:00Z"

// trackLines renders a queue entry. Ids are positions.
func trackLines(t music.Track, pos int) []string {
	secs := t.DurationMS / 1000
	return []string{
		"file: " + t.ID,
		"Artist: " + strings.Join(t.Artists, ";"),
		"AlbumArtist: " + strings.Join(t.AlbumArtists, ";"),
		"Title: " + t.Title,
		"Album: " + t.Album,
		fmt.Sprintf("Track: %d", t.TrackNumber),
		"Date: " + t.ReleaseDate,
		fmt.Sprintf("Time: %d", secs),
		fmt.Sprintf("duration: %d", secs),
		fmt.Sprintf("Pos: %d", pos),
		fmt.Sprintf("Id: %d", pos),
	}
}

// playlistTrackLines renders an entry of a stored playlist.
func playlistTrackLines(t music.Track) []string {
	modified := epochTimestamp
	if t.AddedAt != nil {
		modified = t.AddedAt.UTC().Format(time.RFC3339)
	}
	secs := t.DurationMS / 1000
	return []string{
		"file: " + t.ID,
		"Last-Modified: " + modified,
		"Artist: " + strings.Join(t.Artists, ";"),
		"AlbumArtist: " + strings.Join(t.AlbumArtists, ";"),
		"Title: " + t.Title,
		"Album: " + t.Album,
		fmt.Sprintf("Time: %d", secs),
		fmt.Sprintf("duration: %d", secs),
	}
}

func statusLines(s playback.Snapshot) []string {
	lines := []string{
		"repeat: 0",
		"random: 0",
		"single: 0",
		"consume: 0",
		fmt.Sprintf("playlist: %d", s.Version),
		fmt.Sprintf("playlistlength: %d", s.Length),
		"mixrampdb: 0.000000",
		fmt.Sprintf("volume: %d", s.Volume),
		"state: " + s.Status.String(),
	}

	if s.Status == playback.StatusStopped || s.Current < 0 {
		return lines
	}

	lines = append(lines,
		fmt.Sprintf("song: %d", s.Current),
		fmt.Sprintf("songid: %d", s.Current),
		fmt.Sprintf("time: %d:%d", int(s.Elapsed.Seconds()), int(s.Duration.Seconds())),
		fmt.Sprintf("elapsed: %.3f", s.Elapsed.Seconds()),
		fmt.Sprintf("duration: %.3f", s.Duration.Seconds()),
		"audio: 44100:16:2",
		"bitrate: 320",
	)
	if s.Next >= 0 {
		lines = append(lines,
			fmt.Sprintf("nextsong: %d", s.Next),
			fmt.Sprintf("nextsongid: %d", s.Next),
		)
	}
	return lines
}
