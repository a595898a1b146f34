package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func seedSubscription(t *testing.T, db *gorm.DB, subreddit string) Subscription {
	t.Helper()
	sub := Subscription{Subreddit: subreddit, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&sub).Error)
	return sub
}

func seedEndpoint(t *testing.T, db *gorm.DB, kind string, active bool) Endpoint {
	t.Helper()
	cfg := `{"webhook_url":"https://discord.test/hook"}`
	if kind == KindPushover {
		cfg = `{"token":"t","user":"u"}`
	}
	ep := Endpoint{Kind: kind, Config: cfg, Active: active, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&ep).Error)
	return ep
}

func link(t *testing.T, db *gorm.DB, sub Subscription, ep Endpoint) {
	t.Helper()
	require.NoError(t, db.Create(&SubscriptionEndpoint{SubscriptionID: sub.ID, EndpointID: ep.ID}).Error)
}

func TestResolver_EndpointsFor(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	resolver := &Resolver{zap.NewNop(), db}

	golang := seedSubscription(t, db, "golang")
	rust := seedSubscription(t, db, "rust")

	active := seedEndpoint(t, db, KindDiscord, true)
	inactive := seedEndpoint(t, db, KindDiscord, false)
	pushover := seedEndpoint(t, db, KindPushover, true)

	link(t, db, golang, active)
	link(t, db, golang, inactive)
	link(t, db, golang, pushover)
	link(t, db, rust, pushover)

	endpoints, err := resolver.EndpointsFor(ctx, "golang")
	require.NoError(t, err)
	require.Len(t, endpoints, 2, "inactive endpoints must be excluded")

	ids := []uint{endpoints[0].ID, endpoints[1].ID}
	assert.Contains(t, ids, active.ID)
	assert.Contains(t, ids, pushover.ID)

	endpoints, err = resolver.EndpointsFor(ctx, "haskell")
	require.NoError(t, err)
	assert.Empty(t, endpoints)
}

func TestDedupe(t *testing.T) {
	// The schema's unique indexes should already prevent duplicate rows from
	// the join, but one endpoint must never be notified twice per post even
	// if the query ever over-returns.
	endpoints := Endpoints{{ID: 1}, {ID: 2}, {ID: 1}, {ID: 3}, {ID: 2}}
	deduped := dedupe(endpoints)
	require.Len(t, deduped, 3)
	assert.Equal(t, uint(1), deduped[0].ID)
	assert.Equal(t, uint(2), deduped[1].ID)
	assert.Equal(t, uint(3), deduped[2].ID)
}

func TestResolver_Topics(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	resolver := &Resolver{zap.NewNop(), db}

	seedSubscription(t, db, "golang")
	seedSubscription(t, db, "rust")

	topics, err := resolver.Topics(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"golang", "rust"}, topics)
}
