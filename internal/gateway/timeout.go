package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds every send made through next. A call that does not
// return in time counts as a failure for that lead. A provider that ignores
// context cancellation is abandoned; its goroutine finishes in the background.
func WithTimeout(next Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return next
	}
	return &timeoutGateway{next: next, timeout: d}
}

func (g *timeoutGateway) Send(ctx context.Context, user *model.User, lead model.Lead, msg Message) Outcome {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- g.next.Send(ctx, user, lead, msg)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failed(0, "send timed out after "+g.timeout.String())
		}
		return Failed(0, ctx.Err().Error())
	}
}
