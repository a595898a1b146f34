package main

import (
	"net/http"
	"os"
	"time"

	"github.com/fiffu/redditwatch/app"
	"github.com/fiffu/redditwatch/config"
	"github.com/fiffu/redditwatch/notifiers"
	"github.com/fiffu/redditwatch/watch"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(app.NewRedditClient),
		fx.Provide(app.NewLedger),
		fx.Provide(app.NewResolver),
		fx.Provide(app.NewService),
		fx.Provide(app.NewAPI),

		fx.Provide(notifiers.NewRegistry),

		fx.Provide(watch.NewLimiter),
		fx.Provide(watch.NewDispatcher),
		fx.Provide(watch.NewScheduler),

		fx.Invoke(func(*http.Server) {}),
		fx.Invoke(func(*watch.Scheduler) {}),
	).Run()
}
