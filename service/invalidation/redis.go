package invalidation

import (
	"encoding/json"
	"errors"
	"time"

	redigo "github.com/gomodule/redigo/redis"

	"github.com/x-xyz/listingengine/base/backoff"
	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain/keys"
	"github.com/x-xyz/listingengine/service/redis"
	"github.com/x-xyz/listingengine/service/statecache"
)

var seqKey = keys.RedisKey(keys.PfxInvalidation, "seq")

type redisPublisher struct {
	redis  redis.Service
	origin string
	met    metrics.Service
}

// NewRedisPublisher publishes on Channel, origin names the sender in logs
func NewRedisPublisher(r redis.Service, origin string) Publisher {
	return &redisPublisher{
		redis:  r,
		origin: origin,
		met:    metrics.New("invalidation"),
	}
}

func (p *redisPublisher) Publish(c ctx.Ctx, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	seq, err := p.redis.Incrby(c, seqKey, 1)
	if err != nil {
		// subscribers skip gap detection on seq 0
		c.WithField("err", err).Warn("redis.Incrby seq failed")
		seq = 0
	}
	msg, err := json.Marshal(Message{Seq: seq, Tags: tags, Origin: p.origin})
	if err != nil {
		return err
	}
	n, err := p.redis.Publish(c, Channel, msg)
	if err != nil {
		c.WithFields(log.Fields{"err": err, "tags": tags}).Error("redis.Publish failed")
		p.met.BumpSum("publish.err", 1)
		return err
	}
	p.met.BumpSum("publish", 1)
	c.WithFields(log.Fields{"tags": tags, "receivers": n, "seq": seq}).Debug("invalidation published")
	return nil
}

type SubscriberConfig struct {
	// PingPeriod keeps the connection alive, reads time out after twice this
	PingPeriod time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

type redisSubscriber struct {
	redis   redis.Service
	handler Handler
	cfg     SubscriberConfig
	met     metrics.Service

	lastSeq    int64
	subscribed bool
}

// NewRedisSubscriber feeds messages on Channel to handler. After a reconnect or
// a sequence gap handler receives statecache.TagAll since messages may be lost.
func NewRedisSubscriber(r redis.Service, handler Handler, cfg SubscriberConfig) Subscriber {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &redisSubscriber{
		redis:   r,
		handler: handler,
		cfg:     cfg,
		met:     metrics.New("invalidation"),
	}
}

func (s *redisSubscriber) Run(c ctx.Ctx) error {
	b := backoff.NewExponential(s.cfg.MinBackoff, s.cfg.MaxBackoff)
	for {
		start := time.Now()
		err := s.listen(c)
		if c.Err() != nil {
			return nil
		}
		if time.Since(start) > s.cfg.MaxBackoff {
			b.Reset()
		}
		s.met.BumpSum("subscriber.reconnect", 1)
		c.WithFields(log.Fields{"err": err, "backoff": b.NextDuration}).Warn("invalidation subscriber disconnected")
		if err := b.Backoff(c); err != nil {
			return nil
		}
	}
}

func (s *redisSubscriber) listen(c ctx.Ctx) error {
	psc, err := s.redis.Subscribe(c, Channel)
	if err != nil {
		return err
	}
	defer psc.Close()

	done := make(chan error, 1)
	go func() {
		for {
			switch v := psc.ReceiveWithTimeout(2 * s.cfg.PingPeriod).(type) {
			case error:
				done <- v
				return
			case redigo.Message:
				s.onMessage(c, v.Data)
			case redigo.Subscription:
				if v.Kind == "subscribe" {
					s.onSubscribed(c)
				}
				if v.Count == 0 {
					done <- nil
					return
				}
			case redigo.Pong:
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()
	// every path waits for the reader so two never overlap across reconnects
	for {
		select {
		case <-ticker.C:
			if err := psc.Ping(""); err != nil {
				psc.Close()
				<-done
				return err
			}
		case <-c.Done():
			if err := psc.Unsubscribe(); err != nil {
				psc.Close()
			}
			<-done
			return nil
		case err := <-done:
			if err == nil {
				err = errors.New("unsubscribed by server")
			}
			return err
		}
	}
}

func (s *redisSubscriber) onSubscribed(c ctx.Ctx) {
	if s.subscribed {
		// whatever was published while disconnected is gone
		s.flush(c, "resubscribed")
	}
	s.subscribed = true
	s.lastSeq = 0
}

func (s *redisSubscriber) onMessage(c ctx.Ctx, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.WithFields(log.Fields{"err": err, "data": string(data)}).Warn("malformed invalidation")
		s.met.BumpSum("subscriber.malformed", 1)
		s.flush(c, "malformed")
		return
	}
	if msg.Seq > 0 && s.lastSeq > 0 && msg.Seq > s.lastSeq+1 {
		s.flush(c, "gap")
	}
	if msg.Seq > 0 {
		s.lastSeq = msg.Seq
	}
	s.met.BumpSum("subscriber.message", 1)
	s.handler(c, msg.Tags)
}

func (s *redisSubscriber) flush(c ctx.Ctx, reason string) {
	c.WithField("reason", reason).Info("flushing state cache")
	s.met.BumpSum("subscriber.flush", 1, "reason", reason)
	s.handler(c, []string{statecache.TagAll})
}
