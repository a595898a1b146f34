package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MaxRateLimitPerMinute caps the outbound poll budget. Reddit allows roughly
// 60 unauthenticated requests per minute; anything above 50 risks bans.
const MaxRateLimitPerMinute = 50

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"redditwatch.sqlite"`

	Reddit struct {
		BaseURL            string        `env:"REDDIT_BASE_URL" envDefault:"https://www.reddit.com"`
		UserAgent          string        `env:"REDDIT_USER_AGENT" envDefault:"redditwatch (https://github.com/fiffu/redditwatch)"`
		RateLimitPerMinute int           `env:"REDDIT_RATE_LIMIT_PER_MINUTE" envDefault:"20"`
		PollInterval       time.Duration `env:"REDDIT_POLL_INTERVAL" envDefault:"60s"`
	}

	Reconcile struct {
		Interval  time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
		Retention time.Duration `env:"LEDGER_RETENTION" envDefault:"720h"`
	}

	DB struct {
		MaxRetries   int           `env:"DB_MAX_RETRIES" envDefault:"5"`
		InitialDelay time.Duration `env:"DB_INITIAL_DELAY" envDefault:"500ms"`
		MaxDelay     time.Duration `env:"DB_MAX_DELAY" envDefault:"5s"`
	}

	Pushover struct {
		APIURL      string `env:"PUSHOVER_API_URL" envDefault:"https://api.pushover.net"`
		TimeoutSecs int    `env:"PUSHOVER_TIMEOUT_SECS" envDefault:"10"`
	}

	Discord struct {
		TimeoutSecs int `env:"DISCORD_TIMEOUT_SECS" envDefault:"10"`
	}

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	if cfg.Reddit.RateLimitPerMinute > MaxRateLimitPerMinute {
		cfg.log.Sugar().Warnf(
			"REDDIT_RATE_LIMIT_PER_MINUTE=%d exceeds the safe maximum, capping at %d req/min",
			cfg.Reddit.RateLimitPerMinute, MaxRateLimitPerMinute,
		)
		cfg.Reddit.RateLimitPerMinute = MaxRateLimitPerMinute
	}
	if cfg.Reddit.RateLimitPerMinute <= 0 {
		cfg.Reddit.RateLimitPerMinute = 20
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env != "production" {
			cfg.log.Sugar().Infof("%s (auth will be disabled outside production)", err)
			creds = nil
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
