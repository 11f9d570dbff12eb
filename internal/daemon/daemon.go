package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hxnx/spotmpd/config"
	"github.com/hxnx/spotmpd/internal/database"
	"github.com/hxnx/spotmpd/internal/feed"
	"github.com/hxnx/spotmpd/internal/mpd"
	"github.com/hxnx/spotmpd/internal/music"
	"github.com/hxnx/spotmpd/internal/playback"
	"github.com/hxnx/spotmpd/internal/redis"
	"go.uber.org/zap"
)

const (
	channelBuffer       = 32
	startupCheckTimeout = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
)

type Option func(*Daemon)

// WithCatalog replaces the Spotify catalog.
func WithCatalog(c music.Catalog) Option {
	return func(d *Daemon) { d.catalog = c }
}

// WithSession replaces the ffmpeg streaming session.
func WithSession(s playback.Session) Option {
	return func(d *Daemon) { d.session = s }
}

// WithResolver replaces the yt-dlp stream resolver.
func WithResolver(r playback.Resolver) Option {
	return func(d *Daemon) { d.resolver = r }
}

type Daemon struct {
	config *config.Config
	logger *zap.Logger

	catalog  music.Catalog
	session  playback.Session
	resolver playback.Resolver
	recorder playback.Recorder

	queue    *playback.Queue
	bridge   *playback.Bridge
	worker   *playback.Worker
	notifier *mpd.Notifier
	server   *mpd.Server
	feed     *feed.Feed

	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	statusStop chan struct{}
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Daemon{config: cfg, logger: logger}
	for _, opt := range opts {
		opt(d)
	}

	d.recorder = d.openRecorder(ctx)
	store := d.openCacheStore(ctx)

	if d.catalog == nil {
		catalog, err := music.NewSpotifyCatalog(ctx, music.SpotifyConfig{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			RedirectURL:  cfg.SpotifyRedirectURL,
			TokenPath:    cfg.SpotifyTokenPath,
		}, logger.Named("catalog"))
		if err != nil {
			return nil, err
		}
		d.catalog = music.NewCachedCatalog(catalog, store, cfg.CacheDuration(), logger.Named("catalog"))
	}

	if d.resolver == nil {
		service := music.NewService(d.catalog, music.NewYTDLPResolver(cfg.YTDLPPath))
		if err := service.Validate(); err != nil {
			return nil, err
		}
		d.resolver = service
	}

	if d.session == nil {
		d.session = playback.NewFFmpegSession(playback.FFmpegConfig{
			Binary: cfg.FFmpegPath,
			Output: cfg.PlaybackOutput,
		}, logger.Named("session"))
	}

	commands := make(chan playback.Command, channelBuffer)
	events := make(chan playback.Event, channelBuffer)

	d.notifier = mpd.NewNotifier()
	d.queue = playback.NewQueue(commands, playback.WithVolume(cfg.DefaultVolume))
	d.bridge = playback.NewBridge(d.session, d.resolver, commands, events, logger.Named("bridge"))
	d.worker = playback.NewWorker(d.queue, events, d.recorder, d.notifier, logger.Named("queue-worker"))

	registry := mpd.NewDefaultRegistry(mpd.Deps{
		Queue:        d.queue,
		Catalog:      d.catalog,
		Recorder:     d.recorder,
		MaxQueueSize: cfg.MaxQueueSize,
		Logger:       logger.Named("commands"),
	})
	d.server = mpd.NewServer(registry, d.notifier, logger.Named("mpd"), cfg.WriteTimeout())

	if cfg.FeedListen != "" {
		d.feed = feed.New(d.notifier, d.queue, logger.Named("feed"))
	}

	return d, nil
}

func (d *Daemon) openRecorder(ctx context.Context) playback.Recorder {
	dbCfg := d.config.GetDBConfig()
	if !dbCfg.Enabled {
		return playback.NewMemoryRecorder()
	}

	_, err := database.Initialize(ctx, &database.Config{
		Host:     dbCfg.Host,
		Port:     dbCfg.Port,
		User:     dbCfg.User,
		Password: dbCfg.Password,
		DBName:   dbCfg.Name,
		SSLMode:  dbCfg.SSLMode,
	}, d.logger.Named("database"))
	if err != nil {
		d.logger.Warn("database initialization failed, keeping history in memory", zap.Error(err))
		return playback.NewMemoryRecorder()
	}
	return database.NewHistoryRepositoryFromDefault()
}

func (d *Daemon) openCacheStore(ctx context.Context) music.Store {
	redisCfg := d.config.GetRedisConfig()
	if !redisCfg.Enabled {
		return music.NewMemoryStore()
	}

	_, err := redis.Init(ctx, redis.Config{
		Host:     redisCfg.Host,
		Port:     redisCfg.Port,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}, d.logger.Named("redis"))
	if err != nil {
		d.logger.Warn("redis initialization failed, caching in memory", zap.Error(err))
		return music.NewMemoryStore()
	}
	return music.NewRedisStoreFromDefault()
}

// Start verifies the backend session, binds the listener and starts the
// background workers.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	user, err := d.catalog.CurrentUserID(checkCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("spotify session check failed: %w", err)
	}
	d.logger.Info("spotify session ready", zap.String("user", user))

	if err := d.server.Listen(d.config.MPDListen); err != nil {
		return fmt.Errorf("failed to bind %s: %w", d.config.MPDListen, err)
	}

	if d.feed != nil {
		if err := d.feed.Start(d.config.FeedListen); err != nil {
			d.server.Close()
			return fmt.Errorf("failed to start feed on %s: %w", d.config.FeedListen, err)
		}
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	d.cancel = runCancel

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		d.bridge.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.worker.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(runCtx); err != nil {
			d.logger.Error("mpd server stopped", zap.Error(err))
		}
	}()

	d.queue.SetVolume(d.config.DefaultVolume)
	d.startStatusLogger()
	d.started = true
	return nil
}

func (d *Daemon) Addr() net.Addr {
	return d.server.Addr()
}

func (d *Daemon) Queue() *playback.Queue {
	return d.queue
}

func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false

	d.stopStatusLogger()

	// Clients are closed while the Bridge still drains directives.
	var errs []error
	if err := d.server.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close mpd server: %w", err))
	}
	if d.feed != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.feed.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown feed: %w", err))
		}
		cancel()
	}
	d.queue.Close()
	d.cancel()
	d.wg.Wait()

	if err := database.Close(); err != nil {
		d.logger.Warn("failed to close database", zap.Error(err))
	}
	if err := redis.Close(); err != nil {
		d.logger.Warn("failed to close redis", zap.Error(err))
	}

	d.logger.Info("daemon stopped")
	return errors.Join(errs...)
}
