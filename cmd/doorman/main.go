package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/doorman/internal/admission"
	"github.com/dropDatabas3/doorman/internal/cache"
	cachemem "github.com/dropDatabas3/doorman/internal/cache/memory"
	cacheredis "github.com/dropDatabas3/doorman/internal/cache/redis"
	"github.com/dropDatabas3/doorman/internal/config"
	"github.com/dropDatabas3/doorman/internal/counter"
	countermem "github.com/dropDatabas3/doorman/internal/counter/memory"
	counterredis "github.com/dropDatabas3/doorman/internal/counter/redis"
	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/http/handlers"
	"github.com/dropDatabas3/doorman/internal/jwt"
	"github.com/dropDatabas3/doorman/internal/oauth"
	"github.com/dropDatabas3/doorman/internal/observability/logger"
	"github.com/dropDatabas3/doorman/internal/quota"
	"github.com/dropDatabas3/doorman/internal/rate"
	"github.com/dropDatabas3/doorman/internal/store"
	storemem "github.com/dropDatabas3/doorman/internal/store/memory"
	storepg "github.com/dropDatabas3/doorman/internal/store/pg"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "doorman.yaml", "ruta del archivo de configuración")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// logger aún no inicializado
		panic(err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "doorman"})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── storage ──
	var st store.Store
	switch cfg.Storage.Driver {
	case "postgres":
		pgst, err := storepg.New(ctx, cfg.Storage.DSN, cfg.Storage.Postgres.MaxConns,
			config.Dur(cfg.Storage.Postgres.ConnMaxLifetime))
		if err != nil {
			log.Fatal("postgres unavailable", logger.Err(err))
		}
		if err := pgst.Migrate(ctx); err != nil {
			log.Fatal("schema migration failed", logger.Err(err))
		}
		st = pgst
	default:
		st = storemem.New()
	}
	defer st.Close()

	// ── cache ──
	var c cache.Cache
	switch cfg.Cache.Kind {
	case "redis":
		c = cacheredis.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
	default:
		c = cachemem.New(config.Dur(cfg.Cache.Memory.DefaultTTL))
	}

	// ── counters (rate + quota) ──
	var cs counter.Store
	switch cfg.Counters.Kind {
	case "redis":
		cs = counterredis.New(cfg.Counters.Redis.Addr, cfg.Counters.Redis.DB, cfg.Counters.Redis.Prefix)
	default:
		cs = countermem.New()
	}

	// ── core ──
	keys, err := jwt.NewEd25519(cfg.OAuth.SigningKID)
	if err != nil {
		log.Fatal("keygen failed", logger.Err(err))
	}
	svc := oauth.NewService(oauth.Options{
		AccessTTL:     config.Dur(cfg.OAuth.AccessTTL),
		RefreshTTL:    config.Dur(cfg.OAuth.RefreshTTL),
		CodeTTL:       config.Dur(cfg.OAuth.CodeTTL),
		TokenCacheTTL: config.Dur(cfg.OAuth.TokenCacheTTL),
	},
		oauth.RegistryFromConfig(cfg.Clients),
		oauth.DirectoryFromConfig(cfg.Users),
		st, c, jwt.NewIssuer(cfg.OAuth.Issuer, keys),
	)

	limiter := rate.New(cs)
	enforcer := quota.New(cs)

	plans := make(map[string]quota.Plan, len(cfg.Quota.Plans))
	for name, p := range cfg.Quota.Plans {
		plans[name] = quota.Plan{Name: name, Daily: p.Daily, Monthly: p.Monthly, Concurrent: p.Concurrent}
	}
	pipe := admission.NewPipeline(admission.Options{
		RateEnabled: cfg.Rate.Enabled,
		RateConfig: rate.Config{
			Strategy: rate.Strategy(cfg.Rate.Strategy),
			Max:      cfg.Rate.MaxRequests,
			Window:   config.Dur(cfg.Rate.Window),
			Burst:    cfg.Rate.Burst,
		},
		QuotaEnabled: cfg.Quota.Enabled,
		Plans:        plans,
		DefaultPlan:  cfg.Quota.DefaultPlan,
	}, limiter, enforcer, svc, oauth.DirectoryFromConfig(cfg.Users))

	d := handlers.Deps{
		Svc:        svc,
		Keys:       keys,
		Limiter:    limiter,
		Store:      st,
		Issuer:     cfg.OAuth.Issuer,
		LoginURL:   cfg.Server.LoginURL,
		AdminScope: cfg.Quota.AdminScope,
	}
	router := httpx.NewRouter(httpx.Routes{
		Authorize:           handlers.Authorize(d),
		Consent:             handlers.Consent(d),
		Token:               handlers.Token(d),
		Revoke:              handlers.Revoke(d),
		Introspect:          handlers.Introspect(d),
		UserInfo:            handlers.UserInfo(d),
		Discovery:           handlers.Discovery(d),
		JWKS:                handlers.JWKS(d),
		AdminRateLimitReset: handlers.AdminRateLimitReset(d),
		AdminRateLimitStats: handlers.AdminRateLimitStats(d),
		Healthz:             handlers.Healthz(),
		Readyz:              handlers.Readyz(d),
		Admission:           pipe.Wrap,
		CORSAllowedOrigins:  cfg.Server.CORSAllowedOrigins,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("doorman listening", logger.String("addr", cfg.Server.Addr))
		return httpx.Start(gctx, cfg.Server.Addr, router)
	})
	g.Go(func() error {
		svc.RunSweeper(gctx, config.Dur(cfg.OAuth.SweepEvery))
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("exit", logger.Err(err))
	}
}
