package invalidation

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	redigo "github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/service/redis/mocks"
	"github.com/x-xyz/listingengine/service/statecache"
)

var mockCtx = ctx.Background()

// fakePubSub answers SUBSCRIBE, UNSUBSCRIBE and PING like a redis server
type fakePubSub struct {
	replies   chan interface{}
	closed    chan struct{}
	closeOnce sync.Once
}

// newFakePubSub starts with the confirmation of the SUBSCRIBE sent by Service.Subscribe
func newFakePubSub() *fakePubSub {
	f := &fakePubSub{
		replies: make(chan interface{}, 16),
		closed:  make(chan struct{}),
	}
	f.push("subscribe", Channel, int64(1))
	return f
}

func (f *fakePubSub) push(kind, channel string, last interface{}) {
	f.replies <- []interface{}{[]byte(kind), []byte(channel), last}
}

func (f *fakePubSub) publish(msg Message) {
	data, _ := json.Marshal(msg)
	f.push("message", Channel, data)
}

func (f *fakePubSub) Send(cmd string, args ...interface{}) error {
	switch cmd {
	case "SUBSCRIBE":
		for _, a := range args {
			f.push("subscribe", a.(string), int64(1))
		}
	case "UNSUBSCRIBE":
		f.push("unsubscribe", Channel, int64(0))
	case "PING":
		f.replies <- []interface{}{[]byte("pong"), []byte("")}
	}
	return nil
}

func (f *fakePubSub) Flush() error { return nil }
func (f *fakePubSub) Err() error   { return nil }
func (f *fakePubSub) Do(string, ...interface{}) (interface{}, error) {
	return nil, errors.New("unsupported")
}
func (f *fakePubSub) DoWithTimeout(time.Duration, string, ...interface{}) (interface{}, error) {
	return nil, errors.New("unsupported")
}
func (f *fakePubSub) Receive() (interface{}, error) { return f.ReceiveWithTimeout(time.Hour) }

func (f *fakePubSub) ReceiveWithTimeout(t time.Duration) (interface{}, error) {
	select {
	case r := <-f.replies:
		return r, nil
	case <-f.closed:
		return nil, errors.New("use of closed connection")
	case <-time.After(t):
		return nil, errors.New("i/o timeout")
	}
}

func (f *fakePubSub) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type invalidationSuite struct {
	suite.Suite
	redis *mocks.Service
	got   chan []string
}

func TestInvalidation(t *testing.T) {
	suite.Run(t, new(invalidationSuite))
}

func (s *invalidationSuite) SetupTest() {
	s.redis = &mocks.Service{}
	s.got = make(chan []string, 16)
}

func (s *invalidationSuite) handler(_ ctx.Ctx, tags []string) {
	s.got <- tags
}

func (s *invalidationSuite) next() []string {
	select {
	case tags := <-s.got:
		return tags
	case <-time.After(time.Second):
		s.FailNow("no invalidation received")
	}
	return nil
}

func (s *invalidationSuite) TestLocal() {
	l := NewLocal(s.handler)
	require.NoError(s.T(), l.Publish(mockCtx, "listing:1", "listings:all"))
	s.Equal([]string{"listing:1", "listings:all"}, s.next())

	require.NoError(s.T(), l.Publish(mockCtx))
	s.Len(s.got, 0)
}

func (s *invalidationSuite) TestCacheHandler() {
	cache := statecache.New(statecache.Config{JanitorInterval: time.Hour})
	defer cache.Close()

	calls := 0
	loader := func(ctx.Ctx) (interface{}, error) {
		calls++
		return calls, nil
	}
	_, err := cache.GetOrCompute(mockCtx, "listing:1", time.Minute, []string{"listing:1"}, loader)
	s.NoError(err)

	require.NoError(s.T(), NewLocal(CacheHandler(cache)).Publish(mockCtx, "listing:1"))
	v, err := cache.GetOrCompute(mockCtx, "listing:1", time.Minute, []string{"listing:1"}, loader)
	s.NoError(err)
	s.Equal(2, v)
}

func (s *invalidationSuite) TestRedisPublish() {
	s.redis.On("Incrby", mockCtx, seqKey, 1).Return(int64(7), nil).Once()
	s.redis.On("Publish", mockCtx, Channel, mock.MatchedBy(func(b []byte) bool {
		var m Message
		return json.Unmarshal(b, &m) == nil && m.Seq == 7 && len(m.Tags) == 2 && m.Origin == "tracker"
	})).Return(2, nil).Once()

	p := NewRedisPublisher(s.redis, "tracker")
	s.NoError(p.Publish(mockCtx, "listing:1", "listings:all"))
	s.NoError(p.Publish(mockCtx))
	s.redis.AssertExpectations(s.T())
}

func (s *invalidationSuite) TestRedisPublishWithoutSeq() {
	s.redis.On("Incrby", mockCtx, seqKey, 1).Return(int64(0), errors.New("down")).Once()
	s.redis.On("Publish", mockCtx, Channel, mock.Anything).Return(0, errors.New("down")).Once()

	p := NewRedisPublisher(s.redis, "tracker")
	s.Error(p.Publish(mockCtx, "listing:1"))
}

func (s *invalidationSuite) TestSubscriberDeliversAndDetectsGap() {
	fake := newFakePubSub()
	s.redis.On("Subscribe", mock.Anything, Channel).Return(&redigo.PubSubConn{Conn: fake}, nil).Once()

	c, cancel := ctx.WithCancel(mockCtx)
	sub := NewRedisSubscriber(s.redis, s.handler, SubscriberConfig{PingPeriod: 20 * time.Millisecond})
	stopped := make(chan error, 1)
	go func() { stopped <- sub.Run(c) }()

	fake.publish(Message{Seq: 1, Tags: []string{"listing:1"}})
	s.Equal([]string{"listing:1"}, s.next())

	fake.publish(Message{Seq: 4, Tags: []string{"listing:2"}})
	s.Equal([]string{statecache.TagAll}, s.next())
	s.Equal([]string{"listing:2"}, s.next())

	cancel()
	select {
	case err := <-stopped:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("subscriber did not stop")
	}
}

func (s *invalidationSuite) TestSubscriberFlushesAfterReconnect() {
	first, second := newFakePubSub(), newFakePubSub()
	s.redis.On("Subscribe", mock.Anything, Channel).Return(&redigo.PubSubConn{Conn: first}, nil).Once()
	s.redis.On("Subscribe", mock.Anything, Channel).Return(&redigo.PubSubConn{Conn: second}, nil).Once()

	c, cancel := ctx.WithCancel(mockCtx)
	defer cancel()
	sub := NewRedisSubscriber(s.redis, s.handler, SubscriberConfig{
		PingPeriod: time.Second,
		MinBackoff: 10 * time.Millisecond,
	})
	go sub.Run(c)

	first.publish(Message{Seq: 1, Tags: []string{"listing:1"}})
	s.Equal([]string{"listing:1"}, s.next())

	first.Close()
	s.Equal([]string{statecache.TagAll}, s.next())

	second.publish(Message{Seq: 9, Tags: []string{"listing:3"}})
	s.Equal([]string{"listing:3"}, s.next())
}
