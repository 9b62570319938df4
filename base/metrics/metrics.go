/*
Package metrics sends statsd metrics to a datadog agent.

Key suffixes follow one convention:
  - *.time for work done in process
  - *.latency for calls to other systems
  - *.err and *.warn for failures
*/
package metrics

import (
	"time"

	"github.com/x-xyz/listingengine/base/env"
)

// Ender stops a timer started by BumpTime
type Ender interface {
	End()
}

// Service records metrics under a package prefix. Tags are passed as
// key, value pairs.
type Service interface {
	BumpAvg(key string, val float64, tags ...string)
	BumpSum(key string, val float64, tags ...string)
	BumpHistogram(key string, val float64, tags ...string)

	BumpTime(key string, tags ...string) Ender
}

type Option func(*Metrics)

// WithoutPodName drops the pod tag, which otherwise multiplies custom metrics
func WithoutPodName() Option {
	return func(m *Metrics) {
		m.pod = false
	}
}

// WithSampleRate sets the share of bumps that are sent, 1 sends all
func WithSampleRate(rate float64) Option {
	return func(m *Metrics) {
		m.rate = rate
	}
}

// New returns a Service prefixing keys with pkg. With metrics.enabled off
// bumps only reach the debug log.
func New(pkg string, options ...Option) Service {
	m := &Metrics{pkg: pkg, rate: 1, pod: true}
	for _, o := range options {
		o(m)
	}
	// an empty host tag detaches the metric from the agent's host tags
	m.tags = []string{"host:", "env:" + env.EnvName(), "app:" + env.AppName()}
	if m.pod {
		m.tags = append(m.tags, "pod:"+env.PodName())
	}
	return m
}

type Metrics struct {
	pkg  string
	rate float64
	pod  bool
	tags []string
}

func (m *Metrics) key(key string) string {
	return m.pkg + "." + key
}

func (m *Metrics) withTags(tags []string) []string {
	res := make([]string, 0, len(m.tags)+len(tags)/2)
	res = append(res, m.tags...)
	return append(res, pairs(tags)...)
}

// guard keeps a badly tagged bump from taking the caller down
func (m *Metrics) guard(key string) {
	if p := recover(); p != nil {
		k := m.key("bump.panic")
		send("count", k, 1, pick().Count(k, 1, append(m.tags, "key:"+m.key(key)), 1))
	}
}

func (m *Metrics) BumpAvg(key string, val float64, tags ...string) {
	defer m.guard(key)
	k := m.key(key)
	send("gauge", k, val, pick().Gauge(k, val, m.withTags(tags), m.rate))
}

func (m *Metrics) BumpSum(key string, val float64, tags ...string) {
	defer m.guard(key)
	k := m.key(key)
	send("count", k, val, pick().Count(k, int64(val), m.withTags(tags), m.rate))
}

func (m *Metrics) BumpHistogram(key string, val float64, tags ...string) {
	defer m.guard(key)
	k := m.key(key)
	send("histogram", k, val, pick().Histogram(k, val, m.withTags(tags), m.rate))
}

// BumpTime starts a timer:
//
//	defer met.BumpTime("apply.time").End()
func (m *Metrics) BumpTime(key string, tags ...string) (e Ender) {
	e = nop{}
	defer m.guard(key)
	e = &stopwatch{start: time.Now(), key: m.key(key), tags: m.withTags(tags), rate: m.rate}
	return e
}

type nop struct{}

// NewNop returns a Service dropping everything
func NewNop() Service { return nop{} }

func (nop) BumpAvg(string, float64, ...string)       {}
func (nop) BumpSum(string, float64, ...string)       {}
func (nop) BumpHistogram(string, float64, ...string) {}
func (nop) BumpTime(string, ...string) Ender         { return nop{} }
func (nop) End()                                     {}
