package round

import (
	"context"
	"fmt"
	"time"
)

// Bot is the decision contract every seat is bound to. Implementations may
// block on network I/O; the engine bounds every call with a timeout and
// treats errors exactly like illegal proposals.
type Bot interface {
	DecideBid(ctx context.Context, view BidView) (BidDecision, error)
	DecidePlay(ctx context.Context, view PlayView) (PlayDecision, error)
}

// Funcs adapts plain functions to the Bot interface. A nil function passes.
type Funcs struct {
	Bid  func(ctx context.Context, view BidView) (BidDecision, error)
	Play func(ctx context.Context, view PlayView) (PlayDecision, error)
}

func (f Funcs) DecideBid(ctx context.Context, view BidView) (BidDecision, error) {
	if f.Bid == nil {
		return Pass(), nil
	}
	return f.Bid(ctx, view)
}

func (f Funcs) DecidePlay(ctx context.Context, view PlayView) (PlayDecision, error) {
	if f.Play == nil {
		return PassMove(), nil
	}
	return f.Play(ctx, view)
}

// ask runs fn in its own goroutine and waits at most timeout for it, so a bot
// that ignores its context cannot stall the round. Panics become errors.
func ask[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result{zero, fmt.Errorf("bot panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
