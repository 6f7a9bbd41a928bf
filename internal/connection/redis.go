package connection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	apperrors "socsync/internal/errors"
)

// RedisConfig configures the Redis list transport. The backend pushes
// frames onto InboundKey and pops client frames from OutboundKey.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	InboundKey   string
	OutboundKey  string
	BlockTimeout time.Duration
}

// RedisTransport carries push frames over a pair of Redis lists.
type RedisTransport struct {
	cfg RedisConfig
}

// NewRedisTransport validates cfg and builds the transport.
func NewRedisTransport(cfg RedisConfig) (*RedisTransport, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.InboundKey == "" {
		return nil, apperrors.Validation("redis", "redis inbound key is required")
	}
	if cfg.OutboundKey == "" {
		cfg.OutboundKey = cfg.InboundKey + ":client"
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	return &RedisTransport{cfg: cfg}, nil
}

// Dial connects and pings the server. The token is carried by the auth
// frame, not by Redis credentials.
func (t *RedisTransport) Dial(ctx context.Context, _ string) (Conn, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     t.cfg.Addr,
		Password: t.cfg.Password,
		DB:       t.cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		msg := err.Error()
		if strings.Contains(msg, "NOAUTH") || strings.Contains(msg, "WRONGPASS") {
			return nil, apperrors.New(apperrors.KindAuthentication, "dial", "AUTHENTICATION_FAILED", msg)
		}
		return nil, apperrors.Wrap(apperrors.KindTransport, "dial", err)
	}

	return &redisConn{
		client:       client,
		inbound:      t.cfg.InboundKey,
		outbound:     t.cfg.OutboundKey,
		blockTimeout: t.cfg.BlockTimeout,
	}, nil
}

type redisConn struct {
	client       *redis.Client
	inbound      string
	outbound     string
	blockTimeout time.Duration

	mu         sync.RWMutex
	onActivity func()
}

// Read pops one frame. An empty BLPOP round trip counts as liveness.
func (c *redisConn) Read(ctx context.Context) ([]byte, error) {
	for {
		res, err := c.client.BLPop(ctx, c.blockTimeout, c.inbound).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.activity()
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apperrors.Wrap(apperrors.KindTransport, "read", err)
		}
		if len(res) < 2 {
			continue
		}
		return []byte(res[1]), nil
	}
}

func (c *redisConn) Write(ctx context.Context, data []byte) error {
	if err := c.client.RPush(ctx, c.outbound, data).Err(); err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "write", err)
	}
	return nil
}

func (c *redisConn) Close() error {
	return c.client.Close()
}

func (c *redisConn) SetActivityHandler(fn func()) {
	c.mu.Lock()
	c.onActivity = fn
	c.mu.Unlock()
}

func (c *redisConn) activity() {
	c.mu.RLock()
	fn := c.onActivity
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
