// internal/gateway/breaker.go
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tune the circuit breaker around a gateway.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// DefaultBreakerSettings trips after 5 consecutive failures and probes again after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// BreakerGateway stops calling a failing provider for a while. Declined
// purchases are business outcomes and do not count as failures.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerGateway wraps next with a circuit breaker named name.
func NewBreakerGateway(name string, next Gateway, s BreakerSettings, logger *slog.Logger) *BreakerGateway {
	return &BreakerGateway{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: s.HalfOpenRequests,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (g *BreakerGateway) Purchase(ctx context.Context, req Request) (*Response, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Purchase(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}
	return out.(*Response), nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (g *BreakerGateway) State() string {
	return g.breaker.State().String()
}
