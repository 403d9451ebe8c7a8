package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/bountyboard/internal/api"
	"github.com/MrSnakeDoc/bountyboard/internal/auth"
	"github.com/MrSnakeDoc/bountyboard/internal/config"
	"github.com/MrSnakeDoc/bountyboard/internal/core"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver"
	"github.com/MrSnakeDoc/bountyboard/internal/httpserver/deps"
	"github.com/MrSnakeDoc/bountyboard/internal/logger"
	"github.com/MrSnakeDoc/bountyboard/internal/metrics"
	"github.com/MrSnakeDoc/bountyboard/internal/redis"
	"github.com/MrSnakeDoc/bountyboard/internal/scheduler"
	"github.com/MrSnakeDoc/bountyboard/internal/sources/fixtures"
	"github.com/MrSnakeDoc/bountyboard/internal/store"
	redisstore "github.com/MrSnakeDoc/bountyboard/internal/store/redis"
	"github.com/MrSnakeDoc/bountyboard/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	core        *core.Core
	redisClient goredis.UniversalClient
	payments    *redisstore.PaymentSubscriber
	refresher   *scheduler.Refresher
	evictor     *scheduler.Evictor
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// The bearer token lives in the session, which only exists once the
	// core is built on top of the client.
	var engine atomic.Pointer[core.Core]
	token := func() string {
		if c := engine.Load(); c != nil {
			return c.Session.Token()
		}
		return ""
	}

	client, err := upstream(cfg, loggerClient, token)
	if err != nil {
		loggerClient.Errorf("Failed to initialize upstream: %v", err)
		os.Exit(1)
	}

	// Redis is optional: without it pages are never cached and payments
	// are never confirmed from the settlement feed.
	redisOpts := redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}

	var redisClient goredis.UniversalClient
	var payments *redisstore.PaymentSubscriber
	if redisOpts.Enabled() {
		// Fail fast if configured but unavailable
		redisClient, err = redis.New(context.Background(), redisOpts, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		client = redisstore.NewCachedClient(client, redisstore.NewStore(redisClient), cfg.CacheTTL, loggerClient)
		payments = redisstore.NewPaymentSubscriber(redisClient, cfg.PaymentsChannel, loggerClient)
		loggerClient.Info("Redis initialized successfully")
	} else {
		loggerClient.Info("redis not configured, page cache and payment feed disabled")
	}

	c := core.Init(client, loggerClient, core.Options{
		Store: store.Options{
			PageSize:     cfg.PageSize,
			FetchTimeout: cfg.FetchTimeout,
		},
		Auth: auth.Options{
			PollInterval: cfg.PollInterval,
			LoginTimeout: cfg.LoginTimeout,
			AliasLength:  cfg.AliasLength,
			LoginURLBase: cfg.LoginURLBase,
		},
	})
	engine.Store(c)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		loggerClient.Errorf("Failed to register metrics: %v", err)
		os.Exit(1)
	}

	refresher := scheduler.NewRefresher(c.Store, cfg.WatchScopes, loggerClient, cfg.RefreshInterval)
	evictor := scheduler.NewEvictor(c.Store, loggerClient, cfg.EvictInterval, cfg.EvictAfter)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		Core:           c,
		Metrics:        reg,
		Ready:          readiness(redisClient),
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		RequestTimeout: cfg.RequestTimeout,
		LoginBurst:     cfg.LoginBurst,
		LoginPerMin:    cfg.LoginPerMin,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		core:        c,
		redisClient: redisClient,
		payments:    payments,
		refresher:   refresher,
		evictor:     evictor,
	}
}

// upstream picks the API client: the fixture file when configured, the
// remote HTTP API otherwise.
func upstream(cfg *config.Config, log logger.Logger, token func() string) (api.Client, error) {
	if cfg.FixtureFile != "" {
		log.Info("serving fixtures instead of the remote api", logger.String("file", cfg.FixtureFile))
		fc, err := fixtures.Open(cfg.FixtureFile, log)
		if err != nil {
			return nil, err
		}
		return fc, nil
	}

	log.Info("using remote api",
		logger.String("url", cfg.APIURL),
		logger.Float64("request_rate", cfg.RequestRate),
		logger.Int("request_burst", cfg.RequestBurst))
	hc, err := api.NewHTTPClient(cfg.APIURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		api.WithRateLimit(cfg.RequestRate, cfg.RequestBurst),
		api.WithTokenSource(token),
		api.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return hc, nil
}

// readiness pings Redis when it is configured.
func readiness(client goredis.UniversalClient) func(ctx context.Context) error {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting bountyboard v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("bountyboard %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load the watched scopes and keep them fresh
	if err := a.refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start refresher: %w", err)
	}
	a.logger.Info("refresher started",
		logger.Duration("interval", a.cfg.RefreshInterval))

	a.evictor.Start(ctx)
	a.logger.Info("evictor started",
		logger.Duration("interval", a.cfg.EvictInterval),
		logger.Duration("evict_after", a.cfg.EvictAfter))

	if a.payments != nil {
		go a.core.Assign.ConsumePayments(ctx, a.payments.Subscribe(ctx))
		a.logger.Info("payment feed subscribed", logger.String("channel", a.cfg.PaymentsChannel))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.refresher.Stop()
	a.evictor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Local only: the remote session survives a restart of the core.
	a.core.Teardown()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ bountyboard stopped cleanly")
	_ = a.logger.Sync()
	return nil
}
