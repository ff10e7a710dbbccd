package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxBackoff caps a single retry delay.
const maxBackoff = time.Hour

// BackoffDelay returns how long to wait before the next attempt after
// attemptsMade failed runs. Exponential backoff doubles from the base delay
// without jitter: 2s, 4s, 8s for a 2s base.
func BackoffDelay(opts BackoffOptions, attemptsMade int) time.Duration {
	if opts.Delay <= 0 || attemptsMade < 1 {
		return 0
	}

	if opts.Type == BackoffFixed {
		return opts.Delay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.Delay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	var delay time.Duration
	for i := 0; i < attemptsMade; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
