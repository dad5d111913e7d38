// Package metrics defines the prometheus collectors for auth events.
// All recording methods are safe on a nil *Collectors, which records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "authcore"

type Collectors struct {
	logins          *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsEvicted prometheus.Counter
	sessionsExpired prometheus.Counter
	tokensIssued    *prometheus.CounterVec
	tokensConsumed  *prometheus.CounterVec
	messages        *prometheus.CounterVec
	sweepRemoved    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "logins_total", Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_created_total", Help: "Sessions created.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_evicted_total", Help: "Sessions evicted by the per-user cap.",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_expired_total", Help: "Expired sessions removed on validation.",
		}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "one_time_tokens_issued_total", Help: "One-time tokens issued by type.",
		}, []string{"type"}),
		tokensConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "one_time_tokens_consumed_total", Help: "One-time token consumption attempts by type and outcome.",
		}, []string{"type", "outcome"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_dispatched_total", Help: "Outbound messages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		sweepRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_removed_total", Help: "Rows removed by the background sweep.",
		}, []string{"table"}),
	}

	reg.MustRegister(c.logins, c.sessionsCreated, c.sessionsEvicted, c.sessionsExpired,
		c.tokensIssued, c.tokensConsumed, c.messages, c.sweepRemoved)
	return c
}

func (c *Collectors) Login(outcome string) {
	if c != nil {
		c.logins.WithLabelValues(outcome).Inc()
	}
}

func (c *Collectors) SessionCreated() {
	if c != nil {
		c.sessionsCreated.Inc()
	}
}

func (c *Collectors) SessionsEvicted(n int64) {
	if c != nil && n > 0 {
		c.sessionsEvicted.Add(float64(n))
	}
}

func (c *Collectors) SessionExpired() {
	if c != nil {
		c.sessionsExpired.Inc()
	}
}

func (c *Collectors) TokenIssued(typ string) {
	if c != nil {
		c.tokensIssued.WithLabelValues(typ).Inc()
	}
}

func (c *Collectors) TokenConsumed(typ, outcome string) {
	if c != nil {
		c.tokensConsumed.WithLabelValues(typ, outcome).Inc()
	}
}

func (c *Collectors) Message(kind, outcome string) {
	if c != nil {
		c.messages.WithLabelValues(kind, outcome).Inc()
	}
}

func (c *Collectors) SweepRemoved(table string, n int64) {
	if c != nil && n > 0 {
		c.sweepRemoved.WithLabelValues(table).Add(float64(n))
	}
}
