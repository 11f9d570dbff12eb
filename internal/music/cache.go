package music

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	cacheKeyPrefix     = "spotmpd:"
	defaultCacheTTL    = time.Hour
	playlistsCacheTTL  = time.Minute
	memoryStoreSweepAt = 1024
)

// Store is a byte-oriented TTL cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.data) >= memoryStoreSweepAt {
		for k, e := range m.data {
			if now.After(e.expiresAt) {
				delete(m.data, k)
			}
		}
	}
	m.data[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(ttl),
	}
	return nil
}

// CachedCatalog memoizes catalog lookups in a Store. Cache failures are
// logged and fall through to the wrapped catalog.
type CachedCatalog struct {
	inner  Catalog
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedCatalog(inner Catalog, store Store, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalog{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedCatalog) ResolveTrack(ctx context.Context, id string) (Track, error) {
	key := cacheKeyPrefix + "track:" + id
	if trackID := extractSpotifyTrackID(id); trackID != "" {
		key = cacheKeyPrefix + "track:" + trackID
	}

	var track Track
	if c.load(ctx, key, &track) {
		return track, nil
	}

	track, err := c.inner.ResolveTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}
	c.save(ctx, key, track, c.ttl)
	return track, nil
}

func (c *CachedCatalog) UserPlaylists(ctx context.Context) ([]PlaylistSummary, error) {
	key := cacheKeyPrefix + "playlists"

	var playlists []PlaylistSummary
	if c.load(ctx, key, &playlists) {
		return playlists, nil
	}

	playlists, err := c.inner.UserPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, playlists, playlistsCacheTTL)
	return playlists, nil
}

// PlaylistTracks is keyed by snapshot id so an edited playlist misses.
func (c *CachedCatalog) PlaylistTracks(ctx context.Context, playlist PlaylistSummary) ([]Track, error) {
	key := cacheKeyPrefix + "playlist:" + playlist.ID + ":" + playlist.SnapshotID

	var tracks []Track
	if c.load(ctx, key, &tracks) {
		return tracks, nil
	}

	tracks, err := c.inner.PlaylistTracks(ctx, playlist)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, tracks, c.ttl)
	return tracks, nil
}

func (c *CachedCatalog) CurrentUserID(ctx context.Context) (string, error) {
	return c.inner.CurrentUserID(ctx)
}

func (c *CachedCatalog) load(ctx context.Context, key string, dst any) bool {
	if c.store == nil {
		return false
	}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("catalog cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedCatalog) save(ctx context.Context, key string, value any, ttl time.Duration) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}
