package redisclient

import (
	"context"
	"runtime"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/x-xyz/listingengine/base/backoff"
	"github.com/x-xyz/listingengine/base/log"
)

const (
	dialTimeout  = 2 * time.Second
	readTimeout  = 1500 * time.Millisecond
	writeTimeout = 1500 * time.Millisecond
	idleTimeout  = 4 * time.Minute
	// borrowed connections idle for less than this skip the PING
	pingAfter = time.Second
)

type Config struct {
	URI      string
	Password string
	// PoolMultiplier times NumCPU is the active pool size, zero keeps 1024
	PoolMultiplier float64
	// Attempts to reach the server before giving up, pods sometimes start
	// before their network is ready
	Attempts int
}

func (cfg Config) Pool() *redis.Pool {
	maxActive := 1024
	if cfg.PoolMultiplier > 0 {
		maxActive = int(float64(runtime.NumCPU()) * cfg.PoolMultiplier)
	}
	opts := []redis.DialOption{
		redis.DialConnectTimeout(dialTimeout),
		redis.DialReadTimeout(readTimeout),
		redis.DialWriteTimeout(writeTimeout),
	}
	if cfg.Password != "" {
		opts = append(opts, redis.DialPassword(cfg.Password))
	}
	return &redis.Pool{
		MaxActive:   maxActive,
		MaxIdle:     maxActive/4 + 1,
		IdleTimeout: idleTimeout,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.URI, opts...)
		},
		TestOnBorrow: func(c redis.Conn, lastUsed time.Time) error {
			if time.Since(lastUsed) < pingAfter {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// Connect builds the pool and checks one connection
func Connect(ctx context.Context, cfg Config) (*redis.Pool, error) {
	p := cfg.Pool()
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	b := backoff.NewExponential(time.Second, 8*time.Second)
	var err error
	for i := 1; ; i++ {
		if err = ping(ctx, p); err == nil {
			log.Log().WithField("redisURI", cfg.URI).Info("redis connected")
			return p, nil
		}
		log.Log().WithFields(log.Fields{"redisURI": cfg.URI, "err": err, "attempt": i}).Error("redis ping failed")
		if i >= attempts {
			break
		}
		if err := b.Backoff(ctx); err != nil {
			break
		}
	}
	_ = p.Close()
	return nil, err
}

// MustConnect panics when Connect fails
func MustConnect(ctx context.Context, cfg Config) *redis.Pool {
	p, err := Connect(ctx, cfg)
	if err != nil {
		log.Log().WithFields(log.Fields{"redisURI": cfg.URI, "err": err}).Panic("cannot reach redis")
	}
	return p
}

func ping(ctx context.Context, p *redis.Pool) error {
	c, err := p.GetContext(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	_, err = c.Do("PING")
	return err
}
