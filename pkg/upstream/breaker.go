package upstream

import (
	"errors"

	"github.com/sony/gobreaker"

	"github.com/angelmondragon/events-aggregator/pkg/config"
)

// StateListener observes breaker transitions, e.g. for logging.
type StateListener func(name string, from, to gobreaker.State)

// NewBreaker builds the circuit breaker guarding provider calls. Client
// rejections (non-retryable 4xx) do not count as failures.
func NewBreaker(name string, cfg config.UpstreamConfig, onChange StateListener) *gobreaker.CircuitBreaker {
	threshold := cfg.BreakerConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var statusErr *StatusError
			return errors.As(err, &statusErr) && !statusErr.Retryable()
		},
	}
	if onChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from, to)
		}
	}
	return gobreaker.NewCircuitBreaker(settings)
}
