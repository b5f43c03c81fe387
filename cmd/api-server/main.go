package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/api"
	"github.com/hackgods/physio-scheduling/internal/appointment"
	"github.com/hackgods/physio-scheduling/internal/config"
	"github.com/hackgods/physio-scheduling/internal/course"
	"github.com/hackgods/physio-scheduling/internal/db"
	"github.com/hackgods/physio-scheduling/internal/logging"
	"github.com/hackgods/physio-scheduling/internal/notify"
	redisclient "github.com/hackgods/physio-scheduling/internal/redis"
	"github.com/hackgods/physio-scheduling/internal/referral"
	"github.com/hackgods/physio-scheduling/internal/settings"
)

type closer interface {
	Close(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "api-server", cfg.LogOptions()...)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	if cfg.AutoMigrate {
		if err := db.Migrate(rootCtx, pgPool, log); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	checks := []api.Check{api.PostgresCheck(pgPool)}

	var locker redisclient.Locker = redisclient.NoopLocker{}
	var sp settings.Provider = settings.NewPgProvider(pgPool, settings.Defaults(cfg))

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg, "api-server")
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running with database locking only")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")
		locker = redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait)
		sp = settings.NewCachedProvider(sp, settings.NewRedisCache(rdb), cfg.SettingsCacheTTL, log)
		checks = append(checks, api.RedisCheck(rdb))
	}

	repo := appointment.NewPgRepository(pgPool)

	emitter, emitterCloser, natsConn := buildEmitter(cfg, log, pgPool, repo, sp)
	if natsConn != nil {
		defer natsConn.Close()
		checks = append(checks, api.NATSCheck(natsConn))
	}

	ledger := course.NewLedger(time.Now)
	svc := appointment.NewManager(appointment.Options{
		Repo:        repo,
		Locker:      locker,
		Ledger:      ledger,
		Referrals:   referral.NewSynchronizer(ledger, cfg.HomeClinicID, time.Now),
		Hours:       settings.HoursOf(sp),
		Emitter:     emitter,
		Location:    cfg.ClinicTimezone,
		PhoneRegion: cfg.SMSRegion,
		Logger:      log,
	})

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		History: referral.NewPgStore(pgPool),
		Health:  api.NewHealthHandler(cfg.Env, cfg.Version, checks...),
		Logger:  log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if emitterCloser != nil {
		if err := emitterCloser.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("pending side effects abandoned")
		}
	}
}

// buildEmitter publishes to NATS when NATS_URL is set so a notify-worker
// runs the side effects. Otherwise they run in-process.
func buildEmitter(cfg config.Config, log zerolog.Logger, q db.Queryable, refs notify.CalendarRefStore, sp settings.Provider) (appointment.Emitter, closer, *nats.Conn) {
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("api-server"))
		if err == nil {
			log.Info().Str("url", cfg.NATSURL).Msg("publishing events to NATS")
			return notify.NewNATSPublisher(nc, log), nil, nc
		}
		log.Warn().Err(err).Msg("nats unavailable, dispatching events in-process")
	}

	d := notify.NewDispatcher(notify.HandlerFromConfig(cfg, q, refs, sp, log), log)
	return d, d, nil
}
