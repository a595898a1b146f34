package watch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fiffu/redditwatch/app"
	"github.com/fiffu/redditwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler owns the set of running topic pollers. Each reconciliation tick
// it diffs the persisted subscription set against what is running, spawning
// and stopping pollers so admin changes take effect without a restart. It is
// the only owner of poller lifecycle.
type Scheduler struct {
	log        *zap.Logger
	resolver   *app.Resolver
	ledger     *app.Ledger
	client     *app.RedditClient
	limiter    *Limiter
	dispatcher *Dispatcher

	pollInterval      time.Duration
	reconcileInterval time.Duration
	retention         time.Duration

	mu      sync.Mutex
	pollers map[string]*poller
	cancel  context.CancelFunc
	started bool

	loopDone chan struct{}
}

func NewScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	resolver *app.Resolver,
	ledger *app.Ledger,
	client *app.RedditClient,
	limiter *Limiter,
	dispatcher *Dispatcher,
) *Scheduler {
	s := &Scheduler{
		log:               log,
		resolver:          resolver,
		ledger:            ledger,
		client:            client,
		limiter:           limiter,
		dispatcher:        dispatcher,
		pollInterval:      cfg.Reddit.PollInterval,
		reconcileInterval: cfg.Reconcile.Interval,
		retention:         cfg.Reconcile.Retention,
		pollers:           make(map[string]*poller),
		loopDone:          make(chan struct{}),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop scheduler")
			s.Stop()
			return nil
		},
	})

	return s
}

// Start launches the reconcile loop. The first tick runs immediately so the
// persisted subscription set is picked up at boot.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.loop(ctx)
}

// Stop signals every poller and the reconcile loop, then waits for all of
// them to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if !started || cancel == nil {
		return
	}
	cancel()
	<-s.loopDone
}

// Running reports the topics that currently have a live poller.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]string, 0, len(s.pollers))
	for topic := range s.pollers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	s.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.log.Sugar().Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.reconcile(ctx)
			s.purgeLedger(ctx)
		}
	}
}

// reconcile diffs desired (persisted) topics against running pollers.
// A read failure leaves the current poller set untouched; the next tick
// tries again.
func (s *Scheduler) reconcile(ctx context.Context) {
	topics, err := s.resolver.Topics(ctx)
	if err != nil {
		s.log.Sugar().Warnw("Reconcile skipped, failed to read subscriptions", "err", err)
		return
	}

	desired := make(map[string]bool, len(topics))
	for _, topic := range topics {
		desired[topic] = true
	}

	var stopping []*poller

	s.mu.Lock()
	for topic := range desired {
		if _, running := s.pollers[topic]; !running {
			s.pollers[topic] = s.spawn(ctx, topic)
		}
	}
	for topic, p := range s.pollers {
		if !desired[topic] {
			s.log.Sugar().Infof("Subscription for r/%s removed, stopping poller", topic)
			stopping = append(stopping, p)
			delete(s.pollers, topic)
		}
	}
	s.mu.Unlock()

	// Cancellation is cooperative; pollers exit between fetch cycles or on
	// wake from the limiter, never mid ledger write.
	for _, p := range stopping {
		p.cancel()
		<-p.done
	}
}

func (s *Scheduler) spawn(ctx context.Context, topic string) *poller {
	pctx, cancel := context.WithCancel(ctx)
	p := &poller{
		log:        s.log,
		topic:      topic,
		interval:   s.pollInterval,
		limiter:    s.limiter,
		client:     s.client,
		ledger:     s.ledger,
		dispatcher: s.dispatcher,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go p.run(pctx)
	return p
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	stopping := make([]*poller, 0, len(s.pollers))
	for topic, p := range s.pollers {
		stopping = append(stopping, p)
		delete(s.pollers, topic)
	}
	s.mu.Unlock()

	for _, p := range stopping {
		p.cancel()
		<-p.done
	}
}

func (s *Scheduler) purgeLedger(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	if _, err := s.ledger.PurgeOlderThan(ctx, cutoff); err != nil {
		s.log.Sugar().Errorw("Ledger purge failed", "err", err)
	}
}
