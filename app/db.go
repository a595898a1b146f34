package app

import (
	"fmt"
	"time"

	"github.com/fiffu/redditwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DSN enables WAL and a busy timeout; the daemon is the only writer of
// notified_posts, but the admin API and healthcheck read concurrently.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
}

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *gorm.DB {
	db, err := ConnectWithRetry(DSN(cfg.DatabasePath), cfg.DB.MaxRetries, cfg.DB.InitialDelay, cfg.DB.MaxDelay, log)
	if err != nil {
		log.Sugar().Fatalw("failed to connect database", "err", err)
	}
	log.Info("Database started")

	log.Info("Starting migrations")
	db.AutoMigrate(
		&Subscription{},
		&Endpoint{},
		&SubscriptionEndpoint{},
		&NotifiedPost{},
	)
	return db
}

// ConnectWithRetry opens the sqlite database, retrying transient failures
// (file locked during WAL checkpoint, slow network filesystems) with a
// doubling, capped delay. After maxRetries attempts the error is returned
// and startup is fatal.
func ConnectWithRetry(dsn string, maxRetries int, initialDelay, maxDelay time.Duration, log *zap.Logger) (*gorm.DB, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	delay := initialDelay

	for attempt := 1; ; attempt++ {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err == nil {
			err = db.Exec("SELECT 1").Error
		}
		if err == nil {
			if attempt > 1 {
				log.Sugar().Infof("Database connection successful after %d attempt(s)", attempt)
			}
			return db, nil
		}

		if attempt >= maxRetries {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}

		log.Sugar().Warnf("Database connection attempt %d/%d failed: %v - retrying in %s", attempt, maxRetries, err, delay)
		time.Sleep(delay)

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

type Subscription struct {
	ID        uint   `gorm:"primarykey"`
	Subreddit string `gorm:"uniqueIndex"`
	CreatedAt time.Time

	Endpoints []Endpoint `gorm:"many2many:subscription_endpoints;"`
}

type Endpoint struct {
	ID        uint   `gorm:"primarykey"`
	Kind      string // "discord" or "pushover"
	Config    string `gorm:"type:text"` // kind-specific JSON, validated at creation
	Active    bool
	Note      string
	CreatedAt time.Time
}

type Endpoints []Endpoint

// SubscriptionEndpoint joins subscriptions to endpoints. Both sides cascade:
// deleting either parent removes the link rows.
type SubscriptionEndpoint struct {
	SubscriptionID uint `gorm:"primaryKey;constraint:OnDelete:CASCADE"`
	EndpointID     uint `gorm:"primaryKey;constraint:OnDelete:CASCADE"`
}

// NotifiedPost is the dedup ledger. The composite unique index is the
// authoritative gate; it must hold at the storage layer so it survives
// restarts and concurrent pollers.
type NotifiedPost struct {
	ID          uint   `gorm:"primarykey"`
	Subreddit   string `gorm:"uniqueIndex:idx_subreddit_post"`
	PostID      string `gorm:"uniqueIndex:idx_subreddit_post"`
	FirstSeenAt time.Time
}
