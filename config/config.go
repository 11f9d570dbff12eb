package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MPDListen       string
	MPDWriteTimeout int

	LogLevel      string
	LogFile       string
	DefaultVolume int
	MaxQueueSize  int

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURL  string
	SpotifyTokenPath    string

	YTDLPPath      string
	FFmpegPath     string
	PlaybackOutput string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	CacheTTL      int

	FeedListen string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MPDListen:       getEnvWithDefault("MPD_LISTEN", "127.0.0.1:6600"),
		MPDWriteTimeout: getEnvAsIntWithDefault("MPD_WRITE_TIMEOUT", 6),

		LogLevel:      getEnvWithDefault("LOG_LEVEL", "info"),
		LogFile:       os.Getenv("LOG_FILE"),
		DefaultVolume: getEnvAsIntWithDefault("DEFAULT_VOLUME", 100),
		MaxQueueSize:  getEnvAsIntWithDefault("MAX_QUEUE_SIZE", 500),

		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirectURL:  getEnvWithDefault("SPOTIFY_REDIRECT_URL", "http://127.0.0.1:8888/callback"),
		SpotifyTokenPath:    getEnvWithDefault("SPOTIFY_TOKEN_PATH", "spotify_token.json"),

		YTDLPPath:      getEnvWithDefault("YTDLP_PATH", "yt-dlp"),
		FFmpegPath:     getEnvWithDefault("FFMPEG_PATH", "ffmpeg"),
		PlaybackOutput: os.Getenv("PLAYBACK_OUTPUT"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnvAsInt("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvAsIntWithDefault("REDIS_PORT", 6379),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsIntWithDefault("REDIS_DB", 0),
		CacheTTL:      getEnvAsIntWithDefault("CACHE_TTL", 3600),

		FeedListen: os.Getenv("FEED_LISTEN"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SpotifyClientID == "" {
		return errors.New("SPOTIFY_CLIENT_ID is required")
	}

	if c.SpotifyClientSecret == "" {
		return errors.New("SPOTIFY_CLIENT_SECRET is required")
	}

	if _, _, err := net.SplitHostPort(c.MPDListen); err != nil {
		return fmt.Errorf("MPD_LISTEN must be host:port: %w", err)
	}

	if c.MPDWriteTimeout < 1 {
		return errors.New("MPD_WRITE_TIMEOUT must be at least 1 second")
	}

	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		return errors.New("DEFAULT_VOLUME must be between 0 and 100")
	}

	if c.MaxQueueSize < 1 {
		return errors.New("MAX_QUEUE_SIZE must be at least 1")
	}

	if c.CacheTTL < 0 {
		return errors.New("CACHE_TTL must not be negative")
	}

	return nil
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.MPDWriteTimeout) * time.Second
}

func (c *Config) CacheDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

func getEnvAsInt(key string) int {
	return getEnvAsIntWithDefault(key, 0)
}

func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvWithDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	Enabled  bool
}

func (c *Config) GetDBConfig() *DBConfig {
	return &DBConfig{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
		Enabled:  c.DBHost != "",
	}
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

func (c *Config) GetRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Enabled:  c.RedisHost != "",
	}
}
