package music

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type countingCatalog struct {
	mu        sync.Mutex
	calls     map[string]int
	tracks    map[string]Track
	playlists []PlaylistSummary
	items     map[string][]Track
}

func newCountingCatalog() *countingCatalog {
	return &countingCatalog{
		calls: make(map[string]int),
		tracks: map[string]Track{
			"abc": {ID: "abc", Title: "Song", Artists: []string{"A"}},
		},
		playlists: []PlaylistSummary{{ID: "pl1", Name: "Mix", SnapshotID: "s1", TrackCount: 1}},
		items: map[string][]Track{
			"pl1": {{ID: "abc", Title: "Song"}},
		},
	}
}

func (c *countingCatalog) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *countingCatalog) hit(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *countingCatalog) ResolveTrack(_ context.Context, id string) (Track, error) {
	c.hit("track")
	t, ok := c.tracks[extractSpotifyTrackID(id)]
	if !ok {
		return Track{}, ErrSpotifyResolveFailed
	}
	return t, nil
}

func (c *countingCatalog) UserPlaylists(context.Context) ([]PlaylistSummary, error) {
	c.hit("playlists")
	return c.playlists, nil
}

func (c *countingCatalog) PlaylistTracks(_ context.Context, p PlaylistSummary) ([]Track, error) {
	c.hit("items")
	return c.items[p.ID], nil
}

func (c *countingCatalog) CurrentUserID(context.Context) (string, error) { return "me", nil }

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, _ := store.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestCachedCatalogResolvesOnce(t *testing.T) {
	inner := newCountingCatalog()
	c := NewCachedCatalog(inner, NewMemoryStore(), time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	for _, id := range []string{"spotify:track:abc", "abc", "https://open.spotify.com/track/abc"} {
		track, err := c.ResolveTrack(ctx, id)
		if err != nil {
			t.Fatalf("ResolveTrack(%q): %v", id, err)
		}
		if track.Title != "Song" || track.Artists[0] != "A" {
			t.Fatalf("unexpected track %+v", track)
		}
	}
	if n := inner.count("track"); n != 1 {
		t.Fatalf("inner catalog called %d times", n)
	}
}

func TestCachedCatalogDoesNotCacheErrors(t *testing.T) {
	inner := newCountingCatalog()
	c := NewCachedCatalog(inner, NewMemoryStore(), time.Hour, zaptest.NewLogger(t))

	for range 2 {
		if _, err := c.ResolveTrack(context.Background(), "missing"); !errors.Is(err, ErrSpotifyResolveFailed) {
			t.Fatalf("expected ErrSpotifyResolveFailed, got %v", err)
		}
	}
	if n := inner.count("track"); n != 2 {
		t.Fatalf("inner catalog called %d times", n)
	}
}

func TestCachedCatalogPlaylistsKeyedBySnapshot(t *testing.T) {
	inner := newCountingCatalog()
	c := NewCachedCatalog(inner, NewMemoryStore(), time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	playlists, err := c.UserPlaylists(ctx)
	if err != nil || len(playlists) != 1 {
		t.Fatalf("UserPlaylists = %v, %v", playlists, err)
	}
	if _, err := c.UserPlaylists(ctx); err != nil {
		t.Fatal(err)
	}
	if n := inner.count("playlists"); n != 1 {
		t.Fatalf("playlists fetched %d times", n)
	}

	p := playlists[0]
	c.PlaylistTracks(ctx, p)
	c.PlaylistTracks(ctx, p)
	if n := inner.count("items"); n != 1 {
		t.Fatalf("items fetched %d times", n)
	}

	p.SnapshotID = "s2"
	tracks, err := c.PlaylistTracks(ctx, p)
	if err != nil || len(tracks) != 1 {
		t.Fatalf("PlaylistTracks = %v, %v", tracks, err)
	}
	if n := inner.count("items"); n != 2 {
		t.Fatalf("new snapshot should miss, items fetched %d times", n)
	}
}

func TestCachedCatalogFallsThroughOnStoreFailure(t *testing.T) {
	inner := newCountingCatalog()
	c := NewCachedCatalog(inner, failingStore{}, time.Hour, zaptest.NewLogger(t))

	track, err := c.ResolveTrack(context.Background(), "abc")
	if err != nil || track.ID != "abc" {
		t.Fatalf("ResolveTrack = %+v, %v", track, err)
	}
	if id, _ := c.CurrentUserID(context.Background()); id != "me" {
		t.Fatalf("unexpected user %q", id)
	}
}
