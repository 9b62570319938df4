package redis

import (
	"errors"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain/keys"
)

// replies of TTL for a missing key and a key without expiry
const (
	ttlMissing  = -2
	ttlNoExpiry = -1
)

// DEL is sent in chunks so one call never blocks the server for long
var delChunk = 100

type service struct {
	name string
	met  metrics.Service
	pool *redis.Pool
}

// New wraps pool. name tags every metric so several clusters can coexist.
func New(name string, met metrics.Service, pool *redis.Pool) Service {
	return &service{name: name, met: met, pool: pool}
}

func (s *service) conn() (redis.Conn, error) {
	if s.pool == nil {
		return nil, ErrNoPool
	}
	defer s.met.BumpTime("conn.wait", "cluster", s.name).End()
	conn := s.pool.Get()
	if err := conn.Err(); err != nil {
		s.met.BumpSum("conn.err", 1, "cluster", s.name)
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// do runs one command on a pooled connection. key only feeds the prefix tag.
func (s *service) do(c ctx.Ctx, key, cmd string, args ...interface{}) (interface{}, error) {
	defer s.met.BumpTime("time", "cmd", cmd, "cluster", s.name, "prefix", keys.GetPrefix(key)).End()
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	reply, err := conn.Do(cmd, args...)
	if cerr := conn.Close(); cerr != nil {
		s.met.BumpSum("conn.close.err", 1, "cluster", s.name)
	}
	if err != nil && !errors.Is(err, redis.ErrNil) {
		c.WithFields(log.Fields{"err": err, "cmd": cmd, "key": key}).Error("redis command failed")
	}
	return reply, err
}

func (s *service) Get(c ctx.Ctx, key string) ([]byte, error) {
	val, err := redis.Bytes(s.do(c, key, "GET", key))
	if err != nil {
		return nil, err
	}
	s.met.BumpHistogram("bytes", float64(len(val)), "cmd", "GET", "prefix", keys.GetPrefix(key))
	return val, nil
}

func (s *service) Set(c ctx.Ctx, key string, val []byte, expire time.Duration) error {
	s.met.BumpHistogram("bytes", float64(len(val)), "cmd", "SET", "prefix", keys.GetPrefix(key))
	args := redis.Args{}.Add(key, val)
	if expire != Forever {
		args = args.Add("PX", expire.Milliseconds())
	}
	_, err := s.do(c, key, "SET", args...)
	return err
}

func (s *service) Del(c ctx.Ctx, ks ...string) (int, error) {
	if len(ks) == 0 {
		return 0, errors.New("no keys to delete")
	}
	deleted := 0
	for len(ks) > 0 {
		n := delChunk
		if n > len(ks) {
			n = len(ks)
		}
		res, err := redis.Int(s.do(c, ks[0], "DEL", redis.Args{}.AddFlat(ks[:n])...))
		if err != nil {
			return deleted, err
		}
		deleted += res
		ks = ks[n:]
	}
	return deleted, nil
}

func (s *service) TTL(c ctx.Ctx, key string) (int, error) {
	res, err := redis.Int(s.do(c, key, "TTL", key))
	switch {
	case err != nil:
		return 0, err
	case res == ttlMissing:
		return res, ErrNotFound
	case res == ttlNoExpiry:
		return res, ErrNoTTL
	}
	return res, nil
}

func (s *service) Incrby(c ctx.Ctx, key string, val int) (int64, error) {
	return redis.Int64(s.do(c, key, "INCRBY", key, val))
}

func (s *service) Ping(c ctx.Ctx) error {
	_, err := s.do(c, "", "PING")
	return err
}

func (s *service) Publish(c ctx.Ctx, channel string, msg []byte) (int, error) {
	n, err := redis.Int(s.do(c, channel, "PUBLISH", channel, msg))
	if err != nil {
		return 0, err
	}
	s.met.BumpHistogram("receivers", float64(n), "cluster", s.name, "prefix", keys.GetPrefix(channel))
	return n, nil
}

func (s *service) Subscribe(c ctx.Ctx, channels ...string) (*redis.PubSubConn, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	psc := &redis.PubSubConn{Conn: conn}
	if err := psc.Subscribe(redis.Args{}.AddFlat(channels)...); err != nil {
		c.WithFields(log.Fields{"err": err, "channels": channels}).Error("SUBSCRIBE failed")
		psc.Close()
		return nil, err
	}
	return psc, nil
}

func (s *service) Name() string {
	return s.name
}
