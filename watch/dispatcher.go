package watch

import (
	"context"
	"sync"

	"github.com/fiffu/redditwatch/app"
	"github.com/fiffu/redditwatch/notifiers"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Dispatcher fans one newly-seen post out to every endpoint subscribed to
// its subreddit. Deliveries run concurrently and independently; an endpoint
// exhausting its retries is logged and never blocks its siblings.
type Dispatcher struct {
	log      *zap.Logger
	resolver *app.Resolver
	registry notifiers.Registry
}

func NewDispatcher(lc fx.Lifecycle, log *zap.Logger, resolver *app.Resolver, registry notifiers.Registry) *Dispatcher {
	return &Dispatcher{log, resolver, registry}
}

func (d *Dispatcher) Dispatch(ctx context.Context, subreddit string, item notifiers.Item) {
	endpoints, err := d.resolver.EndpointsFor(ctx, subreddit)
	if err != nil {
		d.log.Sugar().Errorw("Failed to resolve endpoints", "subreddit", subreddit, "err", err)
		return
	}
	if len(endpoints) == 0 {
		d.log.Sugar().Debugf("No endpoints for r/%s, skipping %s", subreddit, item.URL)
		return
	}

	dispatchID := uuid.NewString()
	d.log.Sugar().Infow("Dispatching post",
		"dispatch_id", dispatchID, "subreddit", subreddit, "url", item.URL, "endpoints", len(endpoints))

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		notifier, ok := d.registry[ep.Kind]
		if !ok {
			d.log.Sugar().Errorw("Unsupported endpoint kind",
				"dispatch_id", dispatchID, "endpoint_id", ep.ID, "kind", ep.Kind)
			continue
		}

		wg.Add(1)
		go func(ep app.Endpoint) {
			defer wg.Done()
			if err := notifier.Deliver(ctx, ep, item); err != nil {
				d.log.Sugar().Errorw("Delivery failed",
					"dispatch_id", dispatchID, "endpoint_id", ep.ID, "kind", ep.Kind, "err", err)
			} else {
				d.log.Sugar().Infow("Delivered",
					"dispatch_id", dispatchID, "endpoint_id", ep.ID, "kind", ep.Kind)
			}
		}(ep)
	}
	wg.Wait()
}
