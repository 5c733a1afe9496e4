package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mealflow/mealflow/internal/app"
	"github.com/mealflow/mealflow/internal/assignments"
	"github.com/mealflow/mealflow/internal/audit"
	"github.com/mealflow/mealflow/internal/authz"
	"github.com/mealflow/mealflow/internal/catalog"
	"github.com/mealflow/mealflow/internal/platform/cache"
	"github.com/mealflow/mealflow/internal/platform/db"
	"github.com/mealflow/mealflow/internal/roles"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	permCatalog := catalog.MustDefaults()

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo, logger)

	authzCache := authz.NewCache(redisClient, cfg.AuthzCacheTTL)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, permCatalog, auditService, authzCache, logger)

	assignRepo := assignments.NewRepository(pool)
	assignService := assignments.NewService(assignRepo, auditService, authzCache, logger)

	authzService := authz.NewService(assignService, authzCache, auditService, authz.DecisionMode(cfg.AuthzLogDecisions), logger)
	guard := authz.Middleware{Service: authzService, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		CatalogHandler: catalog.NewHandler(logger, permCatalog,
			guard.RequireAny(catalog.PermManageRoles, catalog.PermManageAssign, catalog.PermViewAudit)),
		RolesHandler: roles.NewHandler(logger, rolesService,
			guard.RequireAny(catalog.PermManageRoles)),
		AssignmentsHandler: assignments.NewHandler(logger, assignService,
			guard.RequireAny(catalog.PermManageAssign)),
		AuthzHandler: authz.NewHandler(logger, authzService,
			guard.RequireAny(catalog.PermManageAssign, catalog.PermViewAudit)),
		AuditHandler: audit.NewHandler(logger, auditService,
			guard.RequireAny(catalog.PermViewAudit)),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
