package watch

import (
	"context"
	"errors"
	"time"

	"github.com/fiffu/redditwatch/app"
	"github.com/fiffu/redditwatch/notifiers"
	"go.uber.org/zap"
)

// poller watches a single subreddit for the lifetime the scheduler assigns
// it. Exactly one upstream fetch per topic per interval, no matter how many
// endpoints subscribe.
type poller struct {
	log        *zap.Logger
	topic      string
	interval   time.Duration
	limiter    *Limiter
	client     *app.RedditClient
	ledger     *app.Ledger
	dispatcher *Dispatcher

	cancel context.CancelFunc
	done   chan struct{}
}

func (p *poller) run(ctx context.Context) {
	defer close(p.done)
	p.log.Sugar().Infof("Poller started for r/%s", p.topic)

	for {
		// Acquire doubles as a cancellation point while the budget is dry.
		if err := p.limiter.Acquire(ctx); err != nil {
			p.log.Sugar().Infof("Poller stopped for r/%s", p.topic)
			return
		}

		p.pollOnce(ctx)

		select {
		case <-ctx.Done():
			p.log.Sugar().Infof("Poller stopped for r/%s", p.topic)
			return
		case <-time.After(p.interval):
		}
	}
}

// pollOnce runs a full fetch-filter-dispatch cycle. Every failure mode here
// is non-fatal: log, skip, and let the next tick retry.
func (p *poller) pollOnce(ctx context.Context) {
	posts, err := p.client.NewPosts(ctx, p.topic)
	if err != nil {
		if errors.Is(err, app.ErrMalformedResponse) {
			p.log.Sugar().Warnw("Skipping cycle, response did not parse", "subreddit", p.topic, "err", err)
		} else {
			p.log.Sugar().Warnw("Fetch failed, will retry next tick", "subreddit", p.topic, "err", err)
		}
		return
	}

	now := time.Now().UTC()
	for _, post := range posts {
		if ctx.Err() != nil {
			return
		}

		// Reddit occasionally replays old posts in /new listings.
		if !post.Fresh(now) {
			p.log.Sugar().Debugf("Skipping post %s from r/%s - outside freshness window (posted: %s)",
				post.ID, p.topic, post.CreatedAt())
			continue
		}

		// The ledger insert is durable before MarkIfNew returns, so a crash
		// from here on can lose this notification but never duplicate it.
		newlySeen, err := p.ledger.MarkIfNew(ctx, p.topic, post.ID)
		if err != nil {
			p.log.Sugar().Errorw("Ledger write failed, post will retry next cycle",
				"subreddit", p.topic, "post_id", post.ID, "err", err)
			continue
		}
		if !newlySeen {
			continue
		}

		p.log.Sugar().Infof("New post in r/%s: %s", p.topic, post.DisplayTitle())
		p.dispatcher.Dispatch(ctx, p.topic, notifiers.Item{
			Subreddit: p.topic,
			Title:     post.DisplayTitle(),
			URL:       post.Link(p.client.BaseURL()),
		})
	}
}
