package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the durable record of posts already notified. Pollers must call
// MarkIfNew before handing a post to the dispatcher; the insert is committed
// before MarkIfNew returns.
type Ledger struct {
	log *zap.Logger
	db  *gorm.DB
}

func NewLedger(lc fx.Lifecycle, log *zap.Logger, db *gorm.DB) *Ledger {
	return &Ledger{log, db}
}

// MarkIfNew atomically records (subreddit, postID) and reports whether the
// pair was absent. The unique index on notified_posts makes the first writer
// win; every later caller sees false.
func (l *Ledger) MarkIfNew(ctx context.Context, subreddit, postID string) (bool, error) {
	row := NotifiedPost{
		Subreddit:   subreddit,
		PostID:      postID,
		FirstSeenAt: time.Now().UTC(),
	}
	tx := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if err := tx.Error; err != nil {
		return false, err
	}
	return tx.RowsAffected == 1, nil
}

func (l *Ledger) Count(ctx context.Context) (int64, error) {
	var n int64
	tx := l.db.WithContext(ctx).Model(&NotifiedPost{}).Count(&n)
	return n, tx.Error
}

func (l *Ledger) Recent(ctx context.Context, subreddit string, limit, offset int) ([]NotifiedPost, error) {
	var rows []NotifiedPost
	q := l.db.WithContext(ctx).Model(&NotifiedPost{})
	if subreddit != "" {
		q = q.Where("subreddit = ?", subreddit)
	}
	tx := q.Order("first_seen_at desc").Limit(limit).Offset(offset).Find(&rows)
	return rows, tx.Error
}

// PurgeOlderThan trims ledger rows past the retention horizon. Old entries
// only matter while reddit can still return the post in a listing, which is
// far shorter than any sane retention.
func (l *Ledger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := l.db.WithContext(ctx).Delete(&NotifiedPost{}, "first_seen_at < ?", cutoff)
	if err := tx.Error; err != nil {
		return 0, err
	}
	if tx.RowsAffected > 0 {
		l.log.Sugar().Infof("Purged %d old ledger entries", tx.RowsAffected)
	}
	return tx.RowsAffected, nil
}
