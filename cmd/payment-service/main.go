package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MikeMC777/pagos-ecom/internal/catalog"
	"github.com/MikeMC777/pagos-ecom/internal/config"
	"github.com/MikeMC777/pagos-ecom/internal/gateway"
	"github.com/MikeMC777/pagos-ecom/internal/intake"
	"github.com/MikeMC777/pagos-ecom/internal/notify"
	"github.com/MikeMC777/pagos-ecom/internal/order"
	"github.com/MikeMC777/pagos-ecom/internal/recon"
	"github.com/MikeMC777/pagos-ecom/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	if cfg.AppEnv == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer pool.Close()

	repo := order.NewPGRepo(pool)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	catHTTP := catalog.NewHTTPClient(cfg.CatalogBaseURL)
	cat := catalog.NewCachedCatalog(catHTTP, rdb, cfg.PriceCacheTTL, logger)

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayEnv)

	dispatcher := notify.NewDispatcher(notify.NewHTTPNotifier(cfg.NotifyBaseURL), logger)
	stopDispatcher := dispatcher.Start()
	defer stopDispatcher()

	if cfg.WebhookSecret == "" {
		logger.Warn("webhook signature verification DISABLED: no secret configured",
			zap.Bool("insecure", true), zap.String("app_env", cfg.AppEnv))
	}

	s := &server{
		repo:         repo,
		intake:       intake.NewService(repo, cat, gw, catHTTP, cfg.WebhookNotifyURL, cfg.Currency, logger),
		verifier:     webhook.NewVerifier(cfg.WebhookSecret, cfg.WebhookReplayWindow, logger),
		engine:       recon.NewEngine(repo, dispatcher, cfg.GatewayProvider, logger),
		admin:        recon.NewAdminService(repo, logger),
		gateway:      gw,
		adminKeyHash: cfg.AdminKeyHash,
		log:          logger,
	}

	logger.Info("payment-service listening", zap.String("addr", cfg.ServiceAddr))
	if err := newRouter(s).Run(cfg.ServiceAddr); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
