package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyrelay/pkg/metrics"
)

var errUpstream = errors.New("upstream down")

func TestWrapperTripsAfterFailureRatio(t *testing.T) {
	cfg := DefaultConfig("test-trip")
	cfg.MinRequests = 2
	cfg.FailureRatio = 0.5
	cfg.Timeout = time.Minute
	w := NewWrapper(cfg)

	failing := func(context.Context) error { return errUpstream }

	require.ErrorIs(t, w.Do(context.Background(), failing), errUpstream)
	require.ErrorIs(t, w.Do(context.Background(), failing), errUpstream)

	assert.True(t, w.IsOpen())
	assert.ErrorIs(t, w.Do(context.Background(), failing), gobreaker.ErrOpenState)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-trip")))
}

func TestWrapperIsSuccessfulKeepsBreakerClosed(t *testing.T) {
	cfg := DefaultConfig("test-client-errors")
	cfg.MinRequests = 1
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, errUpstream) }
	w := NewWrapper(cfg)

	for i := 0; i < 5; i++ {
		_ = w.Do(context.Background(), func(context.Context) error { return errUpstream })
	}

	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestWrapperCancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-cancel"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := w.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, uint32(0), w.Counts().Requests)
}
