package proxy

import (
	"context"
	"time"
)

// StartRefresher runs RefreshDynamicClusters once immediately and then on a
// fixed interval until ctx is cancelled. Interval is typically short
// (seconds). The interval does not lengthen after a resolution error: the
// next tick resolves again at the same cadence.
func (p *Proxy) StartRefresher(ctx context.Context, interval time.Duration) {
	p.RefreshDynamicClusters(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RefreshDynamicClusters(ctx)
		}
	}
}
