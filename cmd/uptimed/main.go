package main

//	@title						uptimed API
//	@version					0.1.0
//	@description				Uptime monitoring probe engine API.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/internal/auth"
	"github.com/HerbHall/uptimed/internal/config"
	"github.com/HerbHall/uptimed/internal/event"
	"github.com/HerbHall/uptimed/internal/kafka"
	"github.com/HerbHall/uptimed/internal/monitor"
	"github.com/HerbHall/uptimed/internal/postgres"
	"github.com/HerbHall/uptimed/internal/server"
	"github.com/HerbHall/uptimed/internal/store"
	"github.com/HerbHall/uptimed/internal/version"
	"github.com/HerbHall/uptimed/internal/webhook"
	"github.com/HerbHall/uptimed/internal/ws"
)

func main() {
	// Secrets may live in .env; a missing file is fine.
	_ = godotenv.Load()

	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "probe":
			os.Exit(runProbe(os.Args[2:]))
		case "token":
			os.Exit(runToken(os.Args[2:]))
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("uptimed starting", zap.String("version", version.Short()))
	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults", zap.String("component", "config"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openStorage(ctx, viperCfg, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.close()

	monitorCfg, err := monitor.LoadConfig(cfg.Sub("monitor"))
	if err != nil {
		logger.Fatal("invalid monitor configuration", zap.Error(err))
	}

	bus := event.NewBus(logger.Named("event"))
	busObserver := monitor.NewBusObserver(bus)

	pinger := monitor.NewPingProber(logger.Named("ping"))
	orchestrator := monitor.NewOrchestrator(
		monitor.NewHTTPProber(pinger, logger.Named("http")),
		pinger,
		monitorCfg.ContentValidation,
		logger.Named("orchestrator"),
	)
	svc := monitor.NewService(monitorCfg, orchestrator, logger.Named("monitor"),
		monitor.WithRepository(db.repo),
		monitor.WithMonitorSource(db.repo),
		monitor.WithMonitorWriter(db.repo),
		monitor.WithObserver(busObserver),
	)
	if err := svc.Load(ctx); err != nil {
		logger.Fatal("failed to load monitors", zap.Error(err))
	}
	if err := svc.Start(ctx); err != nil {
		logger.Fatal("failed to start monitor service", zap.Error(err))
	}

	var sink *kafka.Sink
	kafkaCfg, err := kafka.LoadConfig(cfg.Sub("kafka"))
	if err != nil {
		logger.Fatal("invalid kafka configuration", zap.Error(err))
	}
	if kafkaCfg.Enabled {
		sink = kafka.NewSink(kafkaCfg, logger.Named("kafka"))
		sink.Attach(bus)
		logger.Info("kafka sink enabled",
			zap.String("component", "kafka"),
			zap.Strings("brokers", kafkaCfg.Brokers),
			zap.String("topic", kafkaCfg.Topic),
		)
	}

	webhookCfg, err := webhook.LoadConfig(cfg.Sub("webhook"))
	if err != nil {
		logger.Fatal("invalid webhook configuration", zap.Error(err))
	}
	notifier := webhook.New(webhookCfg, logger.Named("webhook"))
	if webhookCfg.Enabled {
		notifier.Attach(bus)
		logger.Info("webhook notifier enabled", zap.String("component", "webhook"))
	}

	// An empty secret leaves the API open; fine on a trusted network only.
	var tokens auth.TokenValidator
	var opts server.Options
	if secret := viperCfg.GetString("auth.jwt_secret"); secret != "" {
		ts, err := auth.NewTokenService([]byte(secret), viperCfg.GetDuration("auth.token_ttl"))
		if err != nil {
			logger.Fatal("failed to initialize auth", zap.Error(err))
		}
		tokens = ts
		opts.Auth = auth.Middleware(ts)
		logger.Info("JWT authentication enabled", zap.String("component", "auth"))
	} else {
		logger.Warn("auth.jwt_secret is empty, API authentication disabled", zap.String("component", "auth"))
	}
	opts.RateLimitRPS = viperCfg.GetFloat64("ratelimit.rps")
	opts.RateLimitBurst = viperCfg.GetInt("ratelimit.burst")

	wsHandler := ws.NewHandler(tokens, bus, logger.Named("ws"))

	var serverCfg server.Config
	if err := viperCfg.UnmarshalKey("server", &serverCfg); err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		if !svc.Running() {
			return errors.New("monitor service not running")
		}
		return db.ping(ctx)
	})
	srv := server.New(serverCfg.Addr(), logger.Named("server"), readyCheck, opts,
		monitor.NewHandler(svc, logger.Named("api")),
		wsHandler,
	)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("uptimed ready",
		zap.String("addr", serverCfg.Addr()),
		zap.Int("monitors", len(svc.Monitors())),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wsHandler.Close()
	notifier.Close()

	svc.Stop()
	cancel()
	svc.Wait()
	busObserver.Close()

	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Warn("kafka sink close error", zap.Error(err))
		}
	}

	logger.Info("uptimed stopped")
}

// repository is everything the monitor service needs from a backend.
type repository interface {
	monitor.Repository
	monitor.MonitorSource
	monitor.MonitorWriter
}

type storage struct {
	repo  repository
	ping  func(ctx context.Context) error
	close func()
}

// openStorage opens the backend selected by database.driver.
func openStorage(ctx context.Context, v *viper.Viper, logger *zap.Logger) (*storage, error) {
	switch driver := v.GetString("database.driver"); driver {
	case "sqlite", "":
		path := v.GetString("database.path")
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory %q: %w", dir, err)
			}
		}
		db, err := store.New(path)
		if err != nil {
			return nil, err
		}
		if err := db.CheckVersion(ctx, version.Short()); err != nil {
			db.Close()
			return nil, err
		}
		repo, err := monitor.NewSQLStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database initialized",
			zap.String("component", "database"),
			zap.String("driver", "sqlite"),
			zap.String("path", path),
		)
		return &storage{
			repo:  repo,
			ping:  db.DB().PingContext,
			close: func() { _ = db.Close() },
		}, nil

	case "postgres":
		dsn := v.GetString("database.dsn")
		if dsn == "" {
			return nil, errors.New("database.dsn is required for the postgres driver")
		}
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		pg, err := postgres.New(connectCtx, dsn)
		if err != nil {
			return nil, err
		}
		logger.Info("database initialized",
			zap.String("component", "database"),
			zap.String("driver", "postgres"),
		)
		return &storage{repo: pg, ping: pg.Ping, close: pg.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported database.driver %q (want sqlite or postgres)", driver)
	}
}
