package kick

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	logx "kickbot/pkg/logx"
)

// BulkStatus fetches the status of every key concurrently.
//
// Every input key appears in the result. A key whose fetch fails or times out
// maps to the zero Status (offline). The fetch as a whole stops at its own
// budget (Config.BulkTimeout, capped at three quarters of ctx's remaining
// time); keys not fetched by then are offline too. The only error is total
// failure: a nil client or ctx itself being done.
func (c *Client) BulkStatus(ctx context.Context, keys []string) (map[string]Status, error) {
	if c == nil || c.http == nil {
		return nil, ErrNoClient
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]Status, len(keys))
	uniq := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := out[k]; dup {
			continue
		}
		out[k] = Status{}
		uniq = append(uniq, k)
	}

	var (
		mu     sync.Mutex
		failed int
	)
	start := time.Now()

	bctx, cancel := c.bulkContext(ctx)
	defer cancel()

	var (
		g       errgroup.Group
		skipped int
	)
	g.SetLimit(c.cfg.Concurrency)
	for _, k := range uniq {
		g.Go(func() error {
			if bctx.Err() != nil {
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			rctx, cancel := context.WithTimeout(bctx, c.cfg.RequestTimeout)
			defer cancel()

			st, err := c.Status(rctx, k)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				c.log.Warn("status fetch failed, assuming offline", logx.String("channel", k), logx.Err(err))
				return nil
			}
			out[k] = st
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields := []logx.Field{
		logx.Int("channels", len(out)),
		logx.Int("failed", failed),
		logx.Int("skipped", skipped),
		logx.Duration("took", time.Since(start)),
	}
	if skipped > 0 {
		c.log.Warn("bulk status budget exhausted, unfetched channels assumed offline", fields...)
	} else {
		c.log.Debug("bulk status done", fields...)
	}
	return out, nil
}

// bulkContext bounds one BulkStatus call. A quarter of the caller's remaining
// time is left for persisting and notifying.
func (c *Client) bulkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := c.cfg.BulkTimeout
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl) * 3 / 4
		if budget <= 0 || rem < budget {
			budget = rem
		}
	}
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}
