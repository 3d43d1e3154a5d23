package services

import (
	"context"
	"errors"
	"log"
	"time"

	"kazka/internal/models"

	"kazka/internal/repositories"
)

// ErrPollTimedOut means the intent never reached a terminal status within
// the window. The intent itself is untouched; callers treat it as
// "unknown, check later", not as a failure.
var ErrPollTimedOut = errors.New("status poll timed out")

// IntentStatusGetter is the slice of the intent manager the poller needs
type IntentStatusGetter interface {
	GetStatus(ctx context.Context, invoiceID string) (*models.PaymentIntent, error)
}

// StatusPoller repeatedly asks the intent manager for the current status
// until a terminal state, the timeout, or cancellation. Each caller owns its
// own schedule; overlapping polls for the same invoice are harmless because
// the reconciler is idempotent.
type StatusPoller struct {
	intents IntentStatusGetter
}

func NewStatusPoller(intents IntentStatusGetter) *StatusPoller {
	return &StatusPoller{intents: intents}
}

// Poll checks immediately, then on every interval tick. The ticker and the
// deadline are released on every exit path.
func (p *StatusPoller) Poll(ctx context.Context, invoiceID string, interval, timeout time.Duration) (*models.PaymentIntent, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		intent, err := p.intents.GetStatus(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, repositories.ErrIntentNotFound) {
				return nil, err
			}
			// transient failure; keep the schedule
			log.Printf("poll %s: status check failed: %v", invoiceID, err)
		} else if intent.Status.IsTerminal() {
			return intent, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrPollTimedOut
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
