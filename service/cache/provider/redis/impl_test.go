package redis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/service/cache/provider"
	"github.com/x-xyz/listingengine/service/redis"
	"github.com/x-xyz/listingengine/service/redis/mocks"
)

type sharedSuite struct {
	suite.Suite
	c ctx.Ctx
	r *mocks.Service
	p provider.Provider
}

func TestShared(t *testing.T) {
	suite.Run(t, new(sharedSuite))
}

func (s *sharedSuite) SetupTest() {
	s.c = ctx.Background()
	s.r = &mocks.Service{}
	s.p = NewRedis(s.r)
}

func (s *sharedSuite) TearDownTest() {
	s.r.AssertExpectations(s.T())
}

func (s *sharedSuite) TestSetKeepsTtl() {
	s.r.On("Set", s.c, "meta:1", []byte("a"), 90*time.Second).Return(nil).Once()
	s.NoError(s.p.Set(s.c, "meta:1", []byte("a"), 90*time.Second))
}

func (s *sharedSuite) TestSetWithoutTtlNeverExpires() {
	s.r.On("Set", s.c, "meta:1", []byte("a"), redis.Forever).Return(nil).Once()
	s.NoError(s.p.Set(s.c, "meta:1", []byte("a"), 0))
}

func (s *sharedSuite) TestGet() {
	s.r.On("Get", s.c, "meta:1").Return([]byte("a"), nil).Once()
	s.r.On("TTL", s.c, "meta:1").Return(30, nil).Once()

	val, ttl, err := s.p.Get(s.c, "meta:1")
	s.NoError(err)
	s.Equal("a", string(val))
	s.Equal(30*time.Second, ttl)
}

func (s *sharedSuite) TestGetMiss() {
	s.r.On("Get", s.c, "meta:1").Return(nil, redis.ErrNotFound).Once()
	_, _, err := s.p.Get(s.c, "meta:1")
	s.Equal(provider.ErrNotFound, err)
}

func (s *sharedSuite) TestGetPersistentKey() {
	s.r.On("Get", s.c, "meta:1").Return([]byte("a"), nil).Once()
	s.r.On("TTL", s.c, "meta:1").Return(-1, redis.ErrNoTTL).Once()

	_, ttl, err := s.p.Get(s.c, "meta:1")
	s.NoError(err)
	s.Zero(ttl)
}

func (s *sharedSuite) TestGetRacesExpiry() {
	s.r.On("Get", s.c, "meta:1").Return([]byte("a"), nil).Once()
	s.r.On("TTL", s.c, "meta:1").Return(-2, redis.ErrNotFound).Once()

	_, _, err := s.p.Get(s.c, "meta:1")
	s.Equal(provider.ErrNotFound, err)
}

func (s *sharedSuite) TestDelError() {
	down := errors.New("connection refused")
	s.r.On("Del", s.c, "meta:1").Return(0, down).Once()
	s.Equal(down, s.p.Del(s.c, "meta:1"))
}
