package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httptransport "github.com/vanishedbrands/download-service/internal/api/http"
	"github.com/vanishedbrands/download-service/internal/api/http/handlers"
	"github.com/vanishedbrands/download-service/internal/auth"
	"github.com/vanishedbrands/download-service/internal/config"
	"github.com/vanishedbrands/download-service/internal/events"
	"github.com/vanishedbrands/download-service/internal/observability"
	"github.com/vanishedbrands/download-service/internal/payment"
	"github.com/vanishedbrands/download-service/internal/ratelimit"
	"github.com/vanishedbrands/download-service/internal/repository"
	"github.com/vanishedbrands/download-service/internal/service"
	s3store "github.com/vanishedbrands/download-service/internal/storage/s3"
	"github.com/vanishedbrands/download-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := s3store.New(ctx, s3store.Config{
		Region:          cfg.Store.Region,
		Bucket:          cfg.Store.Bucket,
		Endpoint:        cfg.Store.Endpoint,
		ForcePathStyle:  cfg.Store.ForcePathStyle,
		AccessKeyID:     cfg.Store.AccessKeyID,
		SecretAccessKey: cfg.Store.SecretAccessKey,
		EncryptAtRest:   cfg.Store.EncryptAtRest,
	})
	if err != nil {
		logger.Fatal("failed to init object store", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(dispatcher, logger)

	tokenRepo := repository.NewTokenRepository(store, cfg.Store.TokenPrefix, cfg.Store.TokenStatePrefix)
	orderRepo := repository.NewOrderRepository(store, cfg.Store.OrderPrefix)
	resolver := repository.NewResourceResolver(store, cfg.Store.ManifestKey, cfg.Store.ResourceFallback)

	issuerService := service.NewIssuerService(service.IssuerDependencies{
		TokenRepo:  tokenRepo,
		OrderRepo:  orderRepo,
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	redemptionService := service.NewRedemptionService(cfg.Download, service.RedemptionDependencies{
		TokenRepo:  tokenRepo,
		Resolver:   resolver,
		Signer:     store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	checkoutService := service.NewCheckoutService(cfg.Payment, cfg.Download, service.CheckoutDependencies{
		Gateway:    payment.NewClient(cfg.Payment),
		OrderRepo:  orderRepo,
		Issuer:     issuerService,
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	linkManager := auth.NewLinkManager(cfg.Download.LinkSecret, cfg.Download.LinkTTL)
	datasetService := service.NewDatasetService(cfg.Store, linkManager, store, logger)

	limiter := newLimiter(cfg, logger)
	adminMiddleware := auth.NewAdminMiddleware(cfg.Admin.Secret)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout(), cfg.App.CORSOrigin)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store),
		Downloads:       handlers.NewDownloadsHandler(redemptionService),
		Checkout:        handlers.NewCheckoutHandler(checkoutService),
		Admin:           handlers.NewAdminHandler(issuerService, datasetService, cfg.Download),
		Dataset:         handlers.NewDatasetHandler(datasetService),
		AdminMiddleware: adminMiddleware,
		Limiter:         limiter,
		Metrics:         metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// newLimiter picks the shared Redis counter when configured, otherwise the
// per-process one. Either way the limiter fails open on counter errors.
func newLimiter(cfg *config.Config, logger *zap.Logger) *ratelimit.Limiter {
	var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
	if cfg.RateLimit.UseRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		counter = ratelimit.NewRedisCounter(client, "dl:rl:")
		logger.Info("rate limiter using redis", zap.String("addr", cfg.Redis.Addr))
	}
	return ratelimit.New(counter, cfg.RateLimit.PerWindow, cfg.RateLimit.Window)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
