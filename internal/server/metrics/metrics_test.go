package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Login("success")
	c.Login("success")
	c.Login("invalid_credentials")
	c.SessionCreated()
	c.SessionsEvicted(2)
	c.SessionsEvicted(0)
	c.SessionExpired()
	c.TokenIssued("PASSWORD_RESET")
	c.TokenConsumed("PASSWORD_RESET", "ok")
	c.Message("WELCOME", "error")
	c.SweepRemoved("sessions", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.logins.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.logins.WithLabelValues("invalid_credentials")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sessionsEvicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tokensConsumed.WithLabelValues("PASSWORD_RESET", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.sweepRemoved.WithLabelValues("sessions")))

	n, err := testutil.GatherAndCount(reg, "authcore_logins_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.Login("x")
		c.SessionCreated()
		c.SessionsEvicted(1)
		c.SessionExpired()
		c.TokenIssued("x")
		c.TokenConsumed("x", "y")
		c.Message("x", "y")
		c.SweepRemoved("x", 1)
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
