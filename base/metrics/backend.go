package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/spf13/viper"

	"github.com/x-xyz/listingengine/base/log"
)

// sinks are shared by every Service, a power of two so the index is a mask
const (
	sinkCount = 16
	sinkMask  = sinkCount - 1
	// statsd lines packed into one datagram
	linesPerPayload = 10
)

var (
	sinksOnce sync.Once
	sinks     [sinkCount]sink
	next      uint32
)

type sink interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
}

// setupSinks dials the agent at metrics.host:metrics.port, or falls back to
// the debug log when metrics.enabled is off
func setupSinks() {
	if !viper.GetBool("metrics.enabled") {
		for i := range sinks {
			sinks[i] = logSink{}
		}
		return
	}
	port := viper.GetInt("metrics.port")
	if port == 0 {
		port = 8125
	}
	addr := fmt.Sprintf("%s:%d", viper.GetString("metrics.host"), port)
	for i := range sinks {
		c, err := statsd.New(addr, statsd.WithMaxMessagesPerPayload(linesPerPayload))
		if err != nil {
			log.Log().WithFields(log.Fields{"addr": addr, "err": err}).Panic("statsd.New failed")
		}
		sinks[i] = c
	}
	log.Log().WithField("addr", addr).Info("statsd sinks ready")
}

func pick() sink {
	sinksOnce.Do(setupSinks)
	return sinks[atomic.AddUint32(&next, 1)&sinkMask]
}

// send reports a failed write without failing the caller
func send(kind, key string, val float64, err error) {
	if err != nil {
		log.Log().WithFields(log.Fields{"err": err, "kind": kind, "key": key, "val": val}).Error("metric dropped")
	}
}

// pairs turns k1, v1, k2, v2 into "k1:v1", "k2:v2"
func pairs(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	if len(tags)%2 != 0 {
		log.Log().WithField("tags", tags).Panic("tags must come in key value pairs")
	}
	res := make([]string, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		res = append(res, tags[i]+":"+tags[i+1])
	}
	return res
}

type stopwatch struct {
	start time.Time
	key   string
	tags  []string
	rate  float64
}

func (s *stopwatch) End() {
	ms := float64(time.Since(s.start)) / float64(time.Millisecond)
	send("time", s.key, ms, pick().TimeInMilliseconds(s.key, ms, s.tags, s.rate))
}

// logSink writes metrics to the debug log
type logSink struct{}

func (logSink) Gauge(name string, value float64, tags []string, _ float64) error {
	log.Log().WithFields(log.Fields{"key": name, "val": value, "tags": tags}).Debug("gauge")
	return nil
}

func (logSink) Count(name string, value int64, tags []string, _ float64) error {
	log.Log().WithFields(log.Fields{"key": name, "val": value, "tags": tags}).Debug("count")
	return nil
}

func (logSink) Histogram(name string, value float64, tags []string, _ float64) error {
	log.Log().WithFields(log.Fields{"key": name, "val": value, "tags": tags}).Debug("histogram")
	return nil
}

func (logSink) TimeInMilliseconds(name string, value float64, tags []string, _ float64) error {
	log.Log().WithFields(log.Fields{"key": name, "ms": value, "tags": tags}).Debug("timing")
	return nil
}
