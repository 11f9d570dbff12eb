package mpd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hxnx/spotmpd/internal/music"
	"github.com/hxnx/spotmpd/internal/playback"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by the built-in commands.
type Deps struct {
	Queue        *playback.Queue
	Catalog      music.Catalog
	Recorder     playback.Recorder
	MaxQueueSize int
	Started      time.Time
	Logger       *zap.Logger
}

// NewDefaultRegistry registers every supported command with the subsystems
// it changes.
func NewDefaultRegistry(d Deps) *Registry {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Started.IsZero() {
		d.Started = time.Now()
	}

	r := NewRegistry()
	r.Register(&pingCommand{})
	r.Register(&notCommandsCommand{})
	r.Register(&statusCommand{queue: d.Queue})
	r.Register(&statsCommand{queue: d.Queue, recorder: d.Recorder, started: d.Started})
	r.Register(&currentSongCommand{queue: d.Queue})
	r.Register(&playlistInfoCommand{queue: d.Queue})
	r.Register(&listPlaylistsCommand{catalog: d.Catalog, logger: d.Logger})
	r.Register(&listPlaylistInfoCommand{catalog: d.Catalog})

	r.Register(&addCommand{queue: d.Queue, catalog: d.Catalog, maxSize: d.MaxQueueSize, logger: d.Logger}, SubsystemPlaylist)
	r.Register(&loadCommand{queue: d.Queue, catalog: d.Catalog, maxSize: d.MaxQueueSize, logger: d.Logger}, SubsystemPlaylist)
	r.Register(&deleteCommand{queue: d.Queue}, SubsystemPlaylist, SubsystemPlayer)
	r.Register(&clearCommand{queue: d.Queue}, SubsystemPlaylist, SubsystemPlayer)
	r.Register(&moveCommand{queue: d.Queue}, SubsystemPlaylist, SubsystemPlayer)

	r.Register(&playCommand{queue: d.Queue}, SubsystemPlayer)
	r.Register(&pauseCommand{queue: d.Queue}, SubsystemPlayer)
	r.Register(&stopCommand{queue: d.Queue}, SubsystemPlayer)
	r.Register(&nextCommand{queue: d.Queue}, SubsystemPlayer)
	r.Register(&previousCommand{queue: d.Queue}, SubsystemPlayer)

	r.Register(&setVolCommand{queue: d.Queue}, SubsystemMixer)
	r.Register(&volumeCommand{queue: d.Queue}, SubsystemMixer)
	return r
}

func parseInt(verb, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, newAck(AckErrorArg, verb, "Integer expected: %s", s)
	}
	return n, nil
}

func requireArgs(req Request, n int) error {
	if len(req.Args) < n {
		return newAck(AckErrorArg, req.Verb, "wrong number of arguments for %q", req.Verb)
	}
	return nil
}

type pingCommand struct{}

func (c *pingCommand) Verbs() []string { return []string{"ping"} }

func (c *pingCommand) Execute(context.Context, Request) ([]string, error) { return nil, nil }

type notCommandsCommand struct{}

func (c *notCommandsCommand) Verbs() []string { return []string{"notcommands"} }

func (c *notCommandsCommand) Execute(context.Context, Request) ([]string, error) { return nil, nil }

type statusCommand struct {
	queue *playback.Queue
}

func (c *statusCommand) Verbs() []string { return []string{"status"} }

func (c *statusCommand) Execute(context.Context, Request) ([]string, error) {
	return statusLines(c.queue.Snapshot()), nil
}

type statsCommand struct {
	queue    *playback.Queue
	recorder playback.Recorder
	started  time.Time
}

func (c *statsCommand) Verbs() []string { return []string{"stats"} }

func (c *statsCommand) Execute(ctx context.Context, _ Request) ([]string, error) {
	tracks := c.queue.Tracks()
	artists := make(map[string]struct{})
	albums := make(map[string]struct{})
	var total time.Duration
	for _, t := range tracks {
		for _, a := range t.Artists {
			artists[a] = struct{}{}
		}
		if t.Album != "" {
			albums[t.Album] = struct{}{}
		}
		total += t.Duration()
	}

	var playtime time.Duration
	if c.recorder != nil {
		if _, pt, err := c.recorder.Totals(ctx); err == nil {
			playtime = pt
		}
	}

	return []string{
		fmt.Sprintf("uptime: %d", int(time.Since(c.started).Seconds())),
		fmt.Sprintf("playtime: %d", int(playtime.Seconds())),
		fmt.Sprintf("artists: %d", len(artists)),
		fmt.Sprintf("albums: %d", len(albums)),
		fmt.Sprintf("songs: %d", len(tracks)),
		fmt.Sprintf("db_playtime: %d", int(total.Seconds())),
		fmt.Sprintf("db_update: %d", c.started.Unix()),
	}, nil
}

type currentSongCommand struct {
	queue *playback.Queue
}

func (c *currentSongCommand) Verbs() []string { return []string{"currentsong"} }

func (c *currentSongCommand) Execute(context.Context, Request) ([]string, error) {
	s := c.queue.Snapshot()
	if s.Current < 0 {
		return nil, nil
	}
	return trackLines(s.Track, s.Current), nil
}

// playlistInfoCommand lists the queue, optionally one position or a
// start:end range of it. plchanges ignores its version argument.
type playlistInfoCommand struct {
	queue *playback.Queue
}

func (c *playlistInfoCommand) Verbs() []string {
	return []string{"playlistinfo", "plchanges", "playlistid"}
}

func (c *playlistInfoCommand) Execute(_ context.Context, req Request) ([]string, error) {
	tracks := c.queue.Tracks()
	start, end := 0, len(tracks)

	if req.Verb != "plchanges" && len(req.Args) > 0 {
		var err error
		if start, end, err = parseRange(req.Verb, req.Args[0]); err != nil {
			return nil, err
		}
		if end < 0 || end > len(tracks) {
			end = len(tracks)
		}
		if start >= len(tracks) || start < 0 {
			return nil, newAck(AckErrorArg, req.Verb, "Bad song index")
		}
	}

	var lines []string
	for i := start; i < end; i++ {
		lines = append(lines, trackLines(tracks[i], i)...)
	}
	return lines, nil
}

// parseRange accepts "N" or "START:END". An open END is returned as -1.
func parseRange(verb, s string) (int, int, error) {
	from, to, isRange := strings.Cut(s, ":")
	start, err := parseInt(verb, from)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return start, start + 1, nil
	}
	if to == "" {
		return start, -1, nil
	}
	end, err := parseInt(verb, to)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

type listPlaylistsCommand struct {
	catalog music.Catalog
	logger  *zap.Logger
}

func (c *listPlaylistsCommand) Verbs() []string { return []string{"listplaylists"} }

func (c *listPlaylistsCommand) Execute(ctx context.Context, _ Request) ([]string, error) {
	playlists, err := c.catalog.UserPlaylists(ctx)
	if err != nil {
		c.logger.Warn("failed to fetch playlists", zap.Error(err))
		return nil, nil
	}

	lines := make([]string, 0, 2*len(playlists))
	for _, p := range playlists {
		lines = append(lines, "playlist: "+p.Name, "Last-Modified: "+epochTimestamp)
	}
	return lines, nil
}

func findPlaylist(ctx context.Context, catalog music.Catalog, verb, name string) (music.PlaylistSummary, error) {
	playlists, err := catalog.UserPlaylists(ctx)
	if err != nil {
		return music.PlaylistSummary{}, newAck(AckErrorSystem, verb, "%v", err)
	}
	for _, p := range playlists {
		if p.Name == name {
			return p, nil
		}
	}
	return music.PlaylistSummary{}, newAck(AckErrorNoExist, verb, "No such playlist")
}

type listPlaylistInfoCommand struct {
	catalog music.Catalog
}

func (c *listPlaylistInfoCommand) Verbs() []string {
	return []string{"listplaylistinfo", "listplaylist"}
}

func (c *listPlaylistInfoCommand) Execute(ctx context.Context, req Request) ([]string, error) {
	if req.Arg == "" {
		return nil, requireArgs(req, 1)
	}
	playlist, err := findPlaylist(ctx, c.catalog, req.Verb, req.Arg)
	if err != nil {
		return nil, err
	}

	tracks, err := c.catalog.PlaylistTracks(ctx, playlist)
	if err != nil {
		return nil, newAck(AckErrorSystem, req.Verb, "%v", err)
	}

	var lines []string
	for _, t := range tracks {
		if req.Verb == "listplaylist" {
			lines = append(lines, "file: "+t.ID)
			continue
		}
		lines = append(lines, playlistTrackLines(t)...)
	}
	return lines, nil
}

type addCommand struct {
	queue   *playback.Queue
	catalog music.Catalog
	maxSize int
	logger  *zap.Logger
}

func (c *addCommand) Verbs() []string { return []string{"add", "addid"} }

func (c *addCommand) Execute(ctx context.Context, req Request) ([]string, error) {
	if err := requireArgs(req, 1); err != nil {
		return nil, err
	}
	if c.maxSize > 0 && c.queue.Len() >= c.maxSize {
		return nil, newAck(AckErrorPlaylistMax, req.Verb, "playlist is at the max size")
	}

	target := -1
	if len(req.Args) > 1 {
		pos := req.Args[1]
		if pos != "+0" {
			n, err := parseInt(req.Verb, pos)
			if err != nil || strings.HasPrefix(pos, "+") || n < 0 || n > c.queue.Len() {
				return nil, newAck(AckErrorArg, req.Verb, "Bad song index")
			}
			target = n
		}
	}

	track, err := c.catalog.ResolveTrack(ctx, req.Args[0])
	if err != nil {
		c.logger.Warn("failed to resolve track", zap.String("uri", req.Args[0]), zap.Error(err))
		return nil, newAck(AckErrorNoExist, req.Verb, "No such song")
	}

	var pos int
	if len(req.Args) > 1 && req.Args[1] == "+0" {
		pos, err = c.queue.InsertAfterCurrentWithin(c.maxSize, track)
	} else {
		pos, err = c.queue.AppendWithin(c.maxSize, track)
	}
	if errors.Is(err, playback.ErrQueueFull) {
		return nil, newAck(AckErrorPlaylistMax, req.Verb, "playlist is at the max size")
	}
	if target >= 0 && target != pos && c.queue.Shift(pos, target) {
		pos = target
	}
	return []string{fmt.Sprintf("Id: %d", pos)}, nil
}

type loadCommand struct {
	queue   *playback.Queue
	catalog music.Catalog
	maxSize int
	logger  *zap.Logger
}

func (c *loadCommand) Verbs() []string { return []string{"load"} }

func (c *loadCommand) Execute(ctx context.Context, req Request) ([]string, error) {
	if req.Arg == "" {
		return nil, requireArgs(req, 1)
	}
	playlist, err := findPlaylist(ctx, c.catalog, req.Verb, req.Arg)
	if err != nil {
		return nil, err
	}

	tracks, err := c.catalog.PlaylistTracks(ctx, playlist)
	if err != nil {
		c.logger.Warn("failed to fetch playlist tracks", zap.String("playlist", playlist.Name), zap.Error(err))
		return nil, newAck(AckErrorNoExist, req.Verb, "No such playlist")
	}
	if _, err := c.queue.AppendWithin(c.maxSize, tracks...); errors.Is(err, playback.ErrQueueFull) {
		return nil, newAck(AckErrorPlaylistMax, req.Verb, "playlist is at the max size")
	}
	return nil, nil
}

type deleteCommand struct {
	queue *playback.Queue
}

func (c *deleteCommand) Verbs() []string { return []string{"delete", "deleteid"} }

func (c *deleteCommand) Execute(_ context.Context, req Request) ([]string, error) {
	if err := requireArgs(req, 1); err != nil {
		return nil, err
	}
	index, err := parseInt(req.Verb, req.Args[0])
	if err != nil {
		return nil, err
	}
	c.queue.Remove(index)
	return nil, nil
}

type clearCommand struct {
	queue *playback.Queue
}

func (c *clearCommand) Verbs() []string { return []string{"clear"} }

func (c *clearCommand) Execute(context.Context, Request) ([]string, error) {
	c.queue.Clear()
	return nil, nil
}

type moveCommand struct {
	queue *playback.Queue
}

func (c *moveCommand) Verbs() []string { return []string{"move", "moveid"} }

func (c *moveCommand) Execute(_ context.Context, req Request) ([]string, error) {
	if err := requireArgs(req, 2); err != nil {
		return nil, err
	}
	from, err := parseInt(req.Verb, req.Args[0])
	if err != nil {
		return nil, err
	}
	to, err := parseInt(req.Verb, req.Args[1])
	if err != nil {
		return nil, err
	}
	c.queue.Shift(from, to)
	return nil, nil
}

type playCommand struct {
	queue *playback.Queue
}

func (c *playCommand) Verbs() []string { return []string{"play", "playid"} }

func (c *playCommand) Execute(_ context.Context, req Request) ([]string, error) {
	if len(req.Args) == 0 {
		c.queue.Resume()
		return nil, nil
	}
	index, err := parseInt(req.Verb, req.Args[0])
	if err != nil {
		return nil, err
	}
	c.queue.Play(index)
	return nil, nil
}

type pauseCommand struct {
	queue *playback.Queue
}

func (c *pauseCommand) Verbs() []string { return []string{"pause"} }

func (c *pauseCommand) Execute(_ context.Context, req Request) ([]string, error) {
	if len(req.Args) == 0 {
		c.queue.TogglePlayback()
		return nil, nil
	}
	switch req.Args[0] {
	case "0":
		c.queue.SetPaused(false)
	case "1":
		c.queue.SetPaused(true)
	default:
		return nil, newAck(AckErrorArg, req.Verb, "Boolean (0/1) expected: %s", req.Args[0])
	}
	return nil, nil
}

type stopCommand struct {
	queue *playback.Queue
}

func (c *stopCommand) Verbs() []string { return []string{"stop"} }

func (c *stopCommand) Execute(context.Context, Request) ([]string, error) {
	c.queue.Stop()
	return nil, nil
}

type nextCommand struct {
	queue *playback.Queue
}

func (c *nextCommand) Verbs() []string { return []string{"next"} }

func (c *nextCommand) Execute(context.Context, Request) ([]string, error) {
	c.queue.Next()
	return nil, nil
}

type previousCommand struct {
	queue *playback.Queue
}

func (c *previousCommand) Verbs() []string { return []string{"previous", "prev"} }

func (c *previousCommand) Execute(context.Context, Request) ([]string, error) {
	c.queue.Previous()
	return nil, nil
}

type setVolCommand struct {
	queue *playback.Queue
}

func (c *setVolCommand) Verbs() []string { return []string{"setvol"} }

func (c *setVolCommand) Execute(_ context.Context, req Request) ([]string, error) {
	if err := requireArgs(req, 1); err != nil {
		return nil, err
	}
	level, err := parseInt(req.Verb, req.Args[0])
	if err != nil {
		return nil, err
	}
	c.queue.SetVolume(level)
	return nil, nil
}

type volumeCommand struct {
	queue *playback.Queue
}

func (c *volumeCommand) Verbs() []string { return []string{"volume"} }

func (c *volumeCommand) Execute(_ context.Context, req Request) ([]string, error) {
	if err := requireArgs(req, 1); err != nil {
		return nil, err
	}
	delta, err := parseInt(req.Verb, req.Args[0])
	if err != nil {
		return nil, err
	}
	c.queue.AdjustVolume(delta)
	return nil, nil
}
