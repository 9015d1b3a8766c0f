package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tripAfter3Failures() *Config {
	return &Config{
		Name:        "test",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	}
}

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(*tripAfter3Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerTripsOpenAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(*tripAfter3Failures())
	failing := func() (interface{}, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(failing)
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpensAfterTimeoutThenCloses(t *testing.T) {
	cfg := tripAfter3Failures()
	cb := NewCircuitBreaker(*cfg)
	failing := func() (interface{}, error) { return nil, errors.New("boom") }
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(failing)
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(cfg.Timeout + 5*time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	result, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := tripAfter3Failures()
	cb := NewCircuitBreaker(*cfg)
	failing := func() (interface{}, error) { return nil, errors.New("boom") }
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(failing)
	}
	time.Sleep(cfg.Timeout + 5*time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	_, err := cb.Execute(failing)
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerPanicCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker(*tripAfter3Failures())
	panicky := func() (interface{}, error) { panic("kaboom") }

	for i := 0; i < 3; i++ {
		func() {
			defer func() { recover() }()
			_, _ = cb.Execute(panicky)
		}()
	}
	assert.Equal(t, StateOpen, cb.State())
}

func TestManagerGetReturnsSameBreakerForSameName(t *testing.T) {
	m := NewManager(nil)
	a := m.Get("x")
	b := m.Get("x")
	assert.Same(t, a, b)
}

func TestNewPlimsollBreakersHealthStatusHealthyWhenAllClosed(t *testing.T) {
	breakers := NewPlimsollBreakers()
	status, detail := breakers.HealthStatus()
	assert.Equal(t, "HEALTHY", status)
	assert.Equal(t, "CLOSED", detail["simulator"])
	assert.Equal(t, "CLOSED", detail["upstream-rpc"])
	assert.Equal(t, "CLOSED", detail["parameter-source"])
}

func TestExecuteWithFallbackUsesFallbackWhenBreakerOpen(t *testing.T) {
	cb := NewCircuitBreaker(*tripAfter3Failures())
	failing := func() (string, error) { return "", errors.New("boom") }
	for i := 0; i < 3; i++ {
		_, _ = ExecuteWithFallback(cb, failing, func(err error) (string, error) { return "", err })
	}
	require.Equal(t, StateOpen, cb.State())

	result, err := ExecuteWithFallback(cb, func() (string, error) { return "primary", nil },
		func(err error) (string, error) { return "fallback", nil })
	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
}
