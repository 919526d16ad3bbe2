// internal/assistant/breaker.go
package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerAssistant fails fast while the model endpoint keeps failing.
type BreakerAssistant struct {
	next    Assistant
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerAssistant trips after failures consecutive errors and retries after openTimeout.
func NewBreakerAssistant(next Assistant, failures uint32, openTimeout time.Duration, logger *slog.Logger) *BreakerAssistant {
	return &BreakerAssistant{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "assistant",
			Timeout: openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (a *BreakerAssistant) Reply(ctx context.Context, req Request) (*Reply, error) {
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.next.Reply(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Reply), nil
}
