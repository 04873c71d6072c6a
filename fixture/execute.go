package fixture

import (
	"context"
	"time"
)

// Execute runs h with call context c and returns its result. Static
// payloads are returned as-is, sync functions are called, async functions
// are awaited until they deliver a Result or ctx is done.
//
// Errors returned by the handler are passed through unchanged.
func Execute[C any](ctx context.Context, h Handler[C], c C) (any, error) {
	switch h.kind {
	case KindStatic:
		return h.value, nil
	case KindFunc:
		return h.fn(ctx, c)
	case KindAsync:
		ch := h.async(ctx, c)
		if ch == nil {
			return nil, ErrNoResult
		}
		select {
		case res, ok := <-ch:
			if !ok {
				return nil, ErrNoResult
			}
			return res.Value, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, ErrNilHandler
}

// Sleep waits for d or until ctx is done, whichever happens first. It
// returns ctx.Err() when interrupted. A non-positive d returns nil
// immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delayed wraps h so that its result is produced no earlier than d after
// the call starts. Use it for per-fixture latency on top of an
// interceptor's default delay.
func Delayed[C any](h Handler[C], d time.Duration) Handler[C] {
	if h.IsZero() || d <= 0 {
		return h
	}
	return FromFunc(func(ctx context.Context, c C) (any, error) {
		if err := Sleep(ctx, d); err != nil {
			return nil, err
		}
		return Execute(ctx, h, c)
	})
}
