package redis

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/suite"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/metrics"
)

// fakeConn answers a handful of commands from an in-memory map
type fakeConn struct {
	mu    *sync.Mutex
	data  map[string][]byte
	calls *[]string
}

func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Err() error   { return nil }
func (c *fakeConn) Send(string, ...interface{}) error {
	return errors.New("unsupported")
}
func (c *fakeConn) Flush() error                 { return nil }
func (c *fakeConn) Receive() (interface{}, error) { return nil, errors.New("unsupported") }

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cmd == "" {
		return nil, nil
	}
	*c.calls = append(*c.calls, cmd)
	if cmd == "PING" {
		return "PONG", nil
	}
	key := fmt.Sprint(args[0])
	switch cmd {
	case "GET":
		v, ok := c.data[key]
		if !ok {
			return nil, nil
		}
		return v, nil
	case "SET":
		c.data[key] = args[1].([]byte)
		return "OK", nil
	case "DEL":
		n := int64(0)
		for _, a := range args {
			if _, ok := c.data[fmt.Sprint(a)]; ok {
				delete(c.data, fmt.Sprint(a))
				n++
			}
		}
		return n, nil
	case "INCRBY":
		n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
		n += int64(args[1].(int))
		c.data[key] = []byte(strconv.FormatInt(n, 10))
		return n, nil
	case "TTL":
		if _, ok := c.data[key]; !ok {
			return int64(ttlMissing), nil
		}
		return int64(ttlNoExpiry), nil
	case "PUBLISH":
		return int64(2), nil
	}
	return nil, fmt.Errorf("unknown command %s", cmd)
}

type redisSuite struct {
	suite.Suite
	calls []string
	svc   Service
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(redisSuite))
}

func (s *redisSuite) SetupTest() {
	s.calls = nil
	conn := &fakeConn{mu: &sync.Mutex{}, data: map[string][]byte{}, calls: &s.calls}
	pool := &redis.Pool{
		MaxIdle: 1,
		Dial:    func() (redis.Conn, error) { return conn, nil },
	}
	s.svc = New("test", metrics.NewNop(), pool)
}

func (s *redisSuite) TestGetSetDel() {
	c := ctx.Background()

	_, err := s.svc.Get(c, "healthcheck:a")
	s.Equal(ErrNotFound, err)

	s.NoError(s.svc.Set(c, "healthcheck:a", []byte("v"), time.Second))
	v, err := s.svc.Get(c, "healthcheck:a")
	s.NoError(err)
	s.Equal([]byte("v"), v)

	n, err := s.svc.Del(c, "healthcheck:a", "healthcheck:b")
	s.NoError(err)
	s.Equal(1, n)

	_, err = s.svc.Del(c)
	s.Error(err)
}

func (s *redisSuite) TestTTL() {
	c := ctx.Background()
	_, err := s.svc.TTL(c, "missing")
	s.Equal(ErrNotFound, err)

	s.NoError(s.svc.Set(c, "k", []byte("v"), Forever))
	_, err = s.svc.TTL(c, "k")
	s.Equal(ErrNoTTL, err)
}

func (s *redisSuite) TestPublish() {
	n, err := s.svc.Publish(ctx.Background(), "invalidation:listings", []byte(`["listing:1"]`))
	s.NoError(err)
	s.Equal(2, n)
	s.Contains(s.calls, "PUBLISH")
}

func (s *redisSuite) TestIncrbyAndPing() {
	c := ctx.Background()
	for i := 1; i <= 3; i++ {
		n, err := s.svc.Incrby(c, "invalidation:seq", 1)
		s.NoError(err)
		s.Equal(int64(i), n)
	}
	s.NoError(s.svc.Ping(c))
	s.Contains(s.calls, "PING")
}

func (s *redisSuite) TestDelChunks() {
	c := ctx.Background()
	old := delChunk
	delChunk = 2
	defer func() { delChunk = old }()

	ks := []string{"k:1", "k:2", "k:3", "k:4", "k:5"}
	for _, k := range ks {
		s.NoError(s.svc.Set(c, k, []byte("v"), Forever))
	}
	s.calls = nil
	n, err := s.svc.Del(c, ks...)
	s.NoError(err)
	s.Equal(5, n)
	s.Equal([]string{"DEL", "DEL", "DEL"}, s.calls)
}

func (s *redisSuite) TestNoPool() {
	svc := New("empty", metrics.NewNop(), nil)
	_, err := svc.Get(ctx.Background(), "k")
	s.Equal(ErrNoPool, err)
}
