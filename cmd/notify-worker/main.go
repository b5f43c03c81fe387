package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/appointment"
	"github.com/hackgods/physio-scheduling/internal/config"
	"github.com/hackgods/physio-scheduling/internal/db"
	"github.com/hackgods/physio-scheduling/internal/logging"
	"github.com/hackgods/physio-scheduling/internal/notify"
	redisclient "github.com/hackgods/physio-scheduling/internal/redis"
	"github.com/hackgods/physio-scheduling/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "notify-worker", cfg.LogOptions()...)
	if cfg.NATSURL == "" {
		log.Fatal().Msg("NATS_URL is required for the notify worker")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	var sp settings.Provider = settings.NewPgProvider(pgPool, settings.Defaults(cfg))
	if rdb, err := redisclient.NewRedisClient(rootCtx, cfg, "notify-worker"); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, reading settings from Postgres")
	} else {
		defer rdb.Close()
		sp = settings.NewCachedProvider(sp, settings.NewRedisCache(rdb), cfg.SettingsCacheTTL, log)
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("notify-worker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connection error")
	}
	defer nc.Close()

	repo := appointment.NewPgRepository(pgPool)
	handler := notify.HandlerFromConfig(cfg, pgPool, repo, sp, log)

	sub, err := notify.Subscribe(nc, handler, log)
	if err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}
	log.Info().Str("subject", notify.SubjectAll).Msg("notify-worker consuming events")

	<-rootCtx.Done()
	log.Info().Msg("shutting down notify-worker")

	if err := sub.Drain(); err != nil {
		log.Warn().Err(err).Msg("drain subscription")
	}
	if err := nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("drain connection")
	}
}
