package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/neopharm/pharmacy/internal/cache"
	"github.com/neopharm/pharmacy/internal/events"
	"github.com/neopharm/pharmacy/internal/httpserver"
	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/repo"
	"github.com/neopharm/pharmacy/internal/search"
	"github.com/neopharm/pharmacy/internal/seed"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/internal/worker"
	"github.com/neopharm/pharmacy/pkg/config"
	"github.com/neopharm/pharmacy/pkg/db"
	"github.com/neopharm/pharmacy/pkg/logging"
	loggingmw "github.com/neopharm/pharmacy/pkg/middleware/logging"
)

func main() {
	cfg := config.Load()
	cfg.MustValidServer()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db_open_failed", "error", err)
		os.Exit(1)
	}
	if err := models.Migrate(gdb); err != nil {
		logger.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}
	r := &repo.GormRepo{DB: gdb}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewProducer(cfg.KafkaBrokers)
		logger.Info("kafka_enabled", "brokers", cfg.KafkaBrokers)
	}

	drugs := &service.DrugService{Repo: r, Events: publisher}
	carts := &service.CartService{Repo: r, Events: publisher}
	forms := &service.FormService{Repo: r, Events: publisher}
	users := &service.UserService{Repo: r, Events: publisher}
	auth := &service.AuthService{Repo: r, Events: publisher, JWTSecret: cfg.JWTAccessSecret, RefreshSecret: cfg.JWTRefreshSecret}
	reports := &service.ReportService{Repo: r}

	var redisClient *cache.RedisClient
	if cfg.RedisAddr != "" {
		if redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			logger.Warn("redis_unavailable", "addr", cfg.RedisAddr, "error", err)
		} else {
			drugs.CountCache = redisClient
			logger.Info("redis_enabled", "addr", cfg.RedisAddr)
		}
	}

	if cfg.ESURL != "" {
		if err := setupSearch(ctx, cfg, drugs); err != nil {
			logger.Warn("search_unavailable", "url", cfg.ESURL, "error", err)
		}
	}

	if err := users.Seed(ctx, service.AdminSeed{
		Username: cfg.AdminUsername,
		Mobile:   cfg.AdminMobile,
		Password: cfg.AdminPassword,
	}); err != nil {
		logger.Error("seed_failed", "error", err)
		os.Exit(1)
	}
	if cfg.SeedDrugsCSV != "" {
		res, err := seed.LoadDrugsFile(ctx, drugs, cfg.SeedDrugsCSV)
		if err != nil {
			logger.Error("drug_seed_failed", "path", cfg.SeedDrugsCSV, "error", err)
			os.Exit(1)
		}
		logger.Info("drug_seed_done", "created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	}

	if cfg.ExpirySweepInterval > 0 {
		go worker.NewExpiryWorker(drugs, cfg.ExpirySweepInterval).Start(ctx)
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger, "/health/"))

	httpserver.Register(e, &httpserver.Deps{
		Auth:          &httpserver.AuthHTTP{Auth: auth, Users: users, SecureCookies: cfg.CookieSecure},
		Store:         &httpserver.StoreHTTP{Drugs: drugs, Carts: carts, Forms: forms},
		Cart:          &httpserver.CartHTTP{Carts: carts, Forms: forms},
		Forms:         &httpserver.FormHTTP{Forms: forms},
		Admin:         &httpserver.AdminHTTP{Users: users, Drugs: drugs},
		Reports:       &httpserver.ReportHTTP{Reports: reports, Users: users, LowStock: cfg.LowStockThreshold},
		JWTSecret:     cfg.JWTAccessSecret,
		Refresher:     auth,
		SecureCookies: cfg.CookieSecure,
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_error", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka_close_error", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis_close_error", "error", err)
		}
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_error", "error", err)
	}
	logger.Info("shutdown_complete")
}

// setupSearch connects to Elasticsearch, creates the index and loads every drug into it.
func setupSearch(ctx context.Context, cfg config.Config, drugs *service.DrugService) error {
	client, err := search.NewClient(ctx, cfg.ESURL, cfg.ESUser, cfg.ESPassword)
	if err != nil {
		return err
	}
	idx := &search.ESIndex{Client: client, Name: cfg.ESIndex}
	if err := idx.EnsureIndex(ctx); err != nil {
		return err
	}
	all, err := drugs.AllDrugs(ctx)
	if err != nil {
		return err
	}
	if err := idx.Reindex(ctx, all); err != nil {
		return err
	}
	drugs.Index = idx
	logging.FromContext(ctx).Info("search_enabled", "index", cfg.ESIndex, "docs", len(all))
	return nil
}
