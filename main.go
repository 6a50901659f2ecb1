package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pharmahub/m/internal/api"
	"pharmahub/m/internal/cache"
	"pharmahub/m/internal/config"
	"pharmahub/m/internal/database"
	"pharmahub/m/internal/discovery"
	"pharmahub/m/internal/fulfillment"
	"pharmahub/m/internal/logger"
	"pharmahub/m/internal/metrics"
	"pharmahub/m/internal/migrations"
	"pharmahub/m/internal/payment"
	"pharmahub/m/internal/seed"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg.MaxOpenConns)
	if err != nil {
		zl.Fatal("database connection failed", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	if err := migrations.Run(db); err != nil {
		zl.Fatal("migrations failed", zap.Error(err))
	}

	ctx := context.Background()
	if cfg.CatalogCSV != "" {
		if _, err := seed.LoadCatalogFile(ctx, db, cfg.CatalogCSV, zl); err != nil {
			zl.Warn("catalog seed skipped", zap.String("path", cfg.CatalogCSV), zap.Error(err))
		}
	}

	reg := metrics.New()

	searchOpts := []discovery.Option{discovery.WithMetrics(reg.Search), discovery.WithLogger(zl)}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			zl.Warn("search cache disabled", zap.Error(err))
		} else {
			searchOpts = append(searchOpts, discovery.WithCache(cache.New(redisClient, "pharmahub:", cfg.SearchCacheTTL)))
		}
	}
	searcher := discovery.New(db, cfg.StaticBaseURL, searchOpts...)
	engine := fulfillment.New(db, payment.Noop{}, reg.Fulfillment, zl)

	handler := api.New(db, cfg.Secret, api.Options{
		Engine:      engine,
		Searcher:    searcher,
		Metrics:     reg.Handler(),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      zl,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("pharmahub server starting", zap.String("addr", srv.Addr), zap.String("driver", cfg.DatabaseDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				zl.Info("graceful shutdown initiated")
				err := srv.Shutdown(ctx)
				return errors.Join(err, db.Close())
			},
			"redis": func(ctx context.Context) error {
				if redisClient == nil {
					return nil
				}
				return redisClient.Close()
			},
		},
	)

	exitCode := <-wait
	zl.Info("server exited", zap.Int("code", exitCode))
	_ = zl.Sync()
	os.Exit(exitCode)
}
