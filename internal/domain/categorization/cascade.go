package categorization

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"ledgerline/internal/domain/mapping"
)

// Tier is one step of a resolution cascade. It reports false on a miss.
type Tier[Q any] struct {
	Name    string
	Resolve func(ctx context.Context, q Q) (Resolution, bool)
}

// Cascade runs tiers in order and returns the first hit together with the
// index of the tier that produced it.
func Cascade[Q any](ctx context.Context, tiers []Tier[Q], q Q) (Resolution, int, bool) {
	for i, tier := range tiers {
		if ctx.Err() != nil {
			return Resolution{}, -1, false
		}
		if res, ok := tier.Resolve(ctx, q); ok {
			res.Confidence = mapping.ClampConfidence(res.Confidence)
			return res, i, true
		}
	}
	return Resolution{}, -1, false
}

// flightGrace is the time a shared resolution may spend beyond the LLM
// timeout on cache reads and write-back.
const flightGrace = 5 * time.Second

// sharedResolve runs fn once per key for all concurrent callers. The shared
// run outlives any single caller's cancellation and is bounded by timeout;
// each caller stops waiting as soon as its own ctx is done.
func sharedResolve(ctx context.Context, group *singleflight.Group, key string, timeout time.Duration, fn func(ctx context.Context) (interface{}, error)) (interface{}, bool, error) {
	ch := group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return fn(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
