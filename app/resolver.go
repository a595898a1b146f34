package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resolver answers "which endpoints want posts from this subreddit". It is a
// pure read against the join table; deactivating an endpoint takes effect on
// the next poll cycle, in-flight deliveries are not recalled.
type Resolver struct {
	log *zap.Logger
	db  *gorm.DB
}

func NewResolver(lc fx.Lifecycle, log *zap.Logger, db *gorm.DB) *Resolver {
	return &Resolver{log, db}
}

func (r *Resolver) EndpointsFor(ctx context.Context, subreddit string) (Endpoints, error) {
	var endpoints Endpoints
	tx := r.db.WithContext(ctx).
		Joins("JOIN subscription_endpoints se ON se.endpoint_id = endpoints.id").
		Joins("JOIN subscriptions s ON s.id = se.subscription_id").
		Where("s.subreddit = ?", subreddit).
		Where("endpoints.active = ?", true).
		Find(&endpoints)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return dedupe(endpoints), nil
}

// Topics returns every distinct subscribed subreddit; the reconciler diffs
// this set against its running pollers each tick.
func (r *Resolver) Topics(ctx context.Context) ([]string, error) {
	var topics []string
	tx := r.db.WithContext(ctx).
		Model(&Subscription{}).
		Distinct("subreddit").
		Pluck("subreddit", &topics)
	return topics, tx.Error
}

// The same endpoint can be linked through several subscriptions covering one
// subreddit; it should still be notified once per post.
func dedupe(endpoints Endpoints) Endpoints {
	seen := make(map[uint]bool, len(endpoints))
	out := make(Endpoints, 0, len(endpoints))
	for _, ep := range endpoints {
		if seen[ep.ID] {
			continue
		}
		seen[ep.ID] = true
		out = append(out, ep)
	}
	return out
}
