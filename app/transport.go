package app

import (
	"net/http"

	"github.com/fiffu/redditwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTransport wraps the default transport so every outbound request carries
// the caller-identifying User-Agent reddit requires.
func NewTransport(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) http.RoundTripper {
	return &transport{
		base:      http.DefaultTransport,
		userAgent: cfg.Reddit.UserAgent,
		log:       log,
	}
}

type transport struct {
	base      http.RoundTripper
	userAgent string
	log       *zap.Logger
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", tpt.userAgent)
	}
	return tpt.base.RoundTrip(req)
}
