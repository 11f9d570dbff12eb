package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hxnx/spotmpd/config"
	"github.com/hxnx/spotmpd/internal/daemon"
	"github.com/hxnx/spotmpd/internal/logger"
	"github.com/hxnx/spotmpd/internal/music"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const usage = `Please ensure you have set the following environment variables:
  SPOTIFY_CLIENT_ID      - Spotify application client id (required)
  SPOTIFY_CLIENT_SECRET  - Spotify application client secret (required)

Optional environment variables:
  MPD_LISTEN             - Protocol listener host:port (default: 127.0.0.1:6600)
  MPD_WRITE_TIMEOUT      - Write timeout in seconds for active clients (default: 6)
  LOG_LEVEL              - Log level (debug, info, warn, error)
  LOG_FILE               - Rotated log file, in addition to stdout
  DEFAULT_VOLUME         - Initial volume (0-100, default: 100)
  MAX_QUEUE_SIZE         - Maximum queue length (default: 500)
  SPOTIFY_REDIRECT_URL   - OAuth callback (default: http://127.0.0.1:8888/callback)
  SPOTIFY_TOKEN_PATH     - Stored OAuth token (default: spotify_token.json)
  YTDLP_PATH, FFMPEG_PATH, PLAYBACK_OUTPUT
  FEED_LISTEN            - Websocket change feed address (disabled when empty)

Database configuration (play history):
  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE

Redis configuration (catalog cache):
  REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB, CACHE_TTL
`

func loadConfig(errOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(errOut, "Error: failed to load configuration: %v\n\n%s", err, usage)
		return nil, err
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	var listen string

	root := &cobra.Command{
		Use:           "spotmpd",
		Short:         "spotmpd serves a Spotify library over the MPD protocol.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, listen)
		},
	}
	root.PersistentFlags().StringVar(&listen, "listen", "", "protocol listener host:port (overrides MPD_LISTEN)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MPD server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, listen)
		},
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize spotmpd against a Spotify account and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return music.Login(cmd.Context(), music.SpotifyConfig{
				ClientID:     cfg.SpotifyClientID,
				ClientSecret: cfg.SpotifyClientSecret,
				RedirectURL:  cfg.SpotifyRedirectURL,
				TokenPath:    cfg.SpotifyTokenPath,
			}, cmd.OutOrStdout())
		},
	}

	root.AddCommand(serveCmd, loginCmd)
	return root
}

func serve(cmd *cobra.Command, listen string) error {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.MPDListen = listen
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log, err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     14,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("configuration loaded",
		zap.String("listen", cfg.MPDListen),
		zap.Int("default_volume", cfg.DefaultVolume),
		zap.Int("max_queue_size", cfg.MaxQueueSize),
		zap.Bool("history_db", cfg.GetDBConfig().Enabled),
		zap.Bool("redis_cache", cfg.GetRedisConfig().Enabled),
		zap.String("feed", cfg.FeedListen),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create daemon", zap.Error(err))
		return err
	}
	if err := d.Start(ctx); err != nil {
		log.Error("failed to start daemon", zap.Error(err))
		return err
	}
	log.Info("spotmpd is running, press CTRL+C to exit")

	<-ctx.Done()

	log.Info("shutting down")
	return d.Stop()
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
