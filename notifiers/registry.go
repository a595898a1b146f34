package notifiers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fiffu/redditwatch/app"
	"github.com/fiffu/redditwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Item is one post reduced to what a delivery needs.
type Item struct {
	Subreddit string
	Title     string
	URL       string
}

// Notifier delivers one item to one endpoint. Implementations own their
// retry budget; when Deliver returns an error the dispatcher gives up on
// that endpoint for this item.
type Notifier interface {
	Kind() string
	Deliver(ctx context.Context, endpoint app.Endpoint, item Item) error
}

type Registry map[string]Notifier

func NewRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{
		log:        log,
		cfg:        cfg,
		transport:  transport,
		attempts:   3,
		retryDelay: time.Second,
	}
	return map[string]Notifier{
		app.KindDiscord:  &discordNotifier{base},
		app.KindPushover: &pushoverNotifier{base},
	}
}

type base struct {
	log        *zap.Logger
	cfg        *config.Config
	transport  http.RoundTripper
	attempts   int
	retryDelay time.Duration
}

// DeliveryError wraps a failed delivery. Permanent errors (bad credentials,
// unparseable config) are a configuration problem and are never retried;
// transient ones (network, 5xx, target rate limiting) are retried within the
// notifier's bounded backoff.
type DeliveryError struct {
	Kind      string
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	class := "transient"
	if e.Permanent {
		class = "permanent"
	}
	return fmt.Sprintf("%s delivery failed (%s): %v", e.Kind, class, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func permanentConfig(kind string, err error) *DeliveryError {
	return &DeliveryError{Kind: kind, Permanent: true, Err: err}
}

// classify maps an outcome to the error taxonomy. err is non-nil only for
// transport-level failures, which are always transient.
func classify(kind string, status int, err error) error {
	switch {
	case err != nil:
		return &DeliveryError{Kind: kind, Permanent: false, Err: err}
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return &DeliveryError{Kind: kind, Permanent: false, Err: fmt.Errorf("status %d", status)}
	default:
		return &DeliveryError{Kind: kind, Permanent: true, Err: fmt.Errorf("status %d", status)}
	}
}

// deliverWithRetry runs one attempt, then retries transient failures with a
// doubling delay until the attempt budget is spent.
func (b base) deliverWithRetry(ctx context.Context, attempt func(context.Context) error) error {
	delay := b.retryDelay

	var err error
	for i := 0; i < b.attempts; i++ {
		err = attempt(ctx)
		if err == nil {
			return nil
		}
		if de, ok := err.(*DeliveryError); ok && de.Permanent {
			return err
		}
		if i == b.attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
