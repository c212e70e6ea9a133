package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff builds a backoff with the given bounds. A zero maxElapsed
// disables the elapsed-time cap so only the attempt limit applies.
func ExponentialBackoff(initialInterval, maxInterval, maxElapsed time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if initialInterval > 0 {
		exp.InitialInterval = initialInterval
	}
	if maxInterval > 0 {
		exp.MaxInterval = maxInterval
	}
	if multiplier > 0 {
		exp.Multiplier = multiplier
	}
	exp.MaxElapsedTime = maxElapsed
	exp.Reset()
	return exp
}
