package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	mu     sync.Mutex
	client *redislib.Client
)

var ErrNotConfigured = errors.New("redis host not configured")

const (
	pingAttempts = 5
	pingTimeout  = 3 * time.Second
)

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (cfg Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Init connects the shared client, retrying the initial ping with
// exponential backoff. A client that never answers is closed and dropped.
func Init(ctx context.Context, cfg Config, logger *zap.Logger) (*redislib.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		return nil, ErrNotConfigured
	}

	mu.Lock()
	defer mu.Unlock()
	if client != nil {
		return client, nil
	}

	c := redislib.NewClient(&redislib.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	backoff := 200 * time.Millisecond
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = c.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			client = c
			logger.Info("redis connected", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
			return client, nil
		}

		logger.Debug("redis ping failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < pingAttempts {
			select {
			case <-ctx.Done():
				_ = c.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	_ = c.Close()
	return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr(), err)
}

func Client() *redislib.Client {
	mu.Lock()
	defer mu.Unlock()
	return client
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
