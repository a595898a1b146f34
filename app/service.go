package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fiffu/redditwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KindDiscord  = "discord"
	KindPushover = "pushover"
)

// DiscordConfig and PushoverConfig are the kind-specific endpoint payloads.
// They are validated once at creation; delivery unmarshals them again and
// surfaces any drift as a permanent delivery error.
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
	Username   string `json:"username,omitempty"`
}

type PushoverConfig struct {
	Token  string `json:"token"`
	User   string `json:"user"`
	Device string `json:"device,omitempty"`
}

// Service is the admin collaborator: CRUD over subscriptions, endpoints and
// their links. The watcher core only reads what this writes.
type Service struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB) *Service {
	return &Service{cfg, log, db}
}

func (svc *Service) CreateSubscription(ctx context.Context, subreddit string) (*Subscription, error) {
	subreddit = normalizeSubreddit(subreddit)
	if subreddit == "" {
		return nil, errors.New("subreddit is required")
	}

	sub := &Subscription{Subreddit: subreddit, CreatedAt: time.Now().UTC()}
	tx := svc.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sub)
	if err := tx.Error; err != nil {
		return nil, err
	}
	if tx.RowsAffected == 0 {
		tx = svc.db.WithContext(ctx).Where("subreddit = ?", subreddit).First(sub)
		if err := tx.Error; err != nil {
			return nil, err
		}
	}
	svc.log.Sugar().Infof("Created subscription id:%v for r/%s", sub.ID, subreddit)
	return sub, nil
}

func (svc *Service) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	tx := svc.db.WithContext(ctx).Order("subreddit asc").Find(&subs)
	return subs, tx.Error
}

// DeleteSubscription removes the row and its endpoint links in one
// transaction, so the cascade holds even when the sqlite connection was
// opened without the foreign-key pragma.
func (svc *Service) DeleteSubscription(ctx context.Context, id uint) error {
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&SubscriptionEndpoint{}, "subscription_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Subscription{}, id).Error
	})
}

func (svc *Service) CreateEndpoint(ctx context.Context, kind, configJSON, note string) (*Endpoint, error) {
	if err := ValidateEndpointConfig(kind, configJSON); err != nil {
		return nil, err
	}

	ep := &Endpoint{
		Kind:      kind,
		Config:    configJSON,
		Active:    true,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	tx := svc.db.WithContext(ctx).Clauses(clause.Returning{}).Create(ep)
	if err := tx.Error; err != nil {
		return nil, err
	}
	svc.log.Sugar().Infof("Created %s endpoint id:%v", kind, ep.ID)
	return ep, nil
}

func (svc *Service) ListEndpoints(ctx context.Context) (Endpoints, error) {
	var endpoints Endpoints
	tx := svc.db.WithContext(ctx).Order("id asc").Find(&endpoints)
	return endpoints, tx.Error
}

func (svc *Service) UpdateEndpoint(ctx context.Context, id uint, configJSON, note string) error {
	ep := Endpoint{}
	if err := svc.db.WithContext(ctx).First(&ep, id).Error; err != nil {
		return err
	}
	if err := ValidateEndpointConfig(ep.Kind, configJSON); err != nil {
		return err
	}
	tx := svc.db.WithContext(ctx).Model(&ep).Updates(map[string]any{
		"config": configJSON,
		"note":   note,
	})
	return tx.Error
}

func (svc *Service) DeleteEndpoint(ctx context.Context, id uint) error {
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&SubscriptionEndpoint{}, "endpoint_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Endpoint{}, id).Error
	})
}

// ToggleEndpoint flips the active flag and returns the new state. Inactive
// endpoints drop out of fan-out on the next poll cycle.
func (svc *Service) ToggleEndpoint(ctx context.Context, id uint) (bool, error) {
	ep := Endpoint{}
	if err := svc.db.WithContext(ctx).First(&ep, id).Error; err != nil {
		return false, err
	}
	tx := svc.db.WithContext(ctx).Model(&ep).Update("active", !ep.Active)
	if err := tx.Error; err != nil {
		return false, err
	}
	return !ep.Active, nil
}

// Link attaches an endpoint to a subscription. The composite primary key
// makes repeat links a no-op.
func (svc *Service) Link(ctx context.Context, subscriptionID, endpointID uint) error {
	if err := svc.db.WithContext(ctx).First(&Subscription{}, subscriptionID).Error; err != nil {
		return fmt.Errorf("subscription %d: %w", subscriptionID, err)
	}
	if err := svc.db.WithContext(ctx).First(&Endpoint{}, endpointID).Error; err != nil {
		return fmt.Errorf("endpoint %d: %w", endpointID, err)
	}
	tx := svc.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&SubscriptionEndpoint{SubscriptionID: subscriptionID, EndpointID: endpointID})
	return tx.Error
}

func (svc *Service) Unlink(ctx context.Context, subscriptionID, endpointID uint) error {
	tx := svc.db.WithContext(ctx).
		Where("subscription_id = ? AND endpoint_id = ?", subscriptionID, endpointID).
		Delete(&SubscriptionEndpoint{})
	return tx.Error
}

// ValidateEndpointConfig rejects configs that can never deliver. This is the
// only validation point; the notifiers trust stored configs and report any
// later mismatch as a permanent delivery error.
func ValidateEndpointConfig(kind, configJSON string) error {
	switch kind {
	case KindDiscord:
		var cfg DiscordConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return fmt.Errorf("invalid discord config: %w", err)
		}
		if !strings.HasPrefix(cfg.WebhookURL, "https://") {
			return errors.New("discord config requires an https webhook_url")
		}
		return nil

	case KindPushover:
		var cfg PushoverConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return fmt.Errorf("invalid pushover config: %w", err)
		}
		if cfg.Token == "" || cfg.User == "" {
			return errors.New("pushover config requires token and user")
		}
		return nil

	default:
		return fmt.Errorf("unknown endpoint kind: %s", kind)
	}
}

func normalizeSubreddit(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/r/")
	s = strings.TrimPrefix(s, "r/")
	return strings.Trim(s, "/")
}
