package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/metrics"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 15 * time.Second
)

type serveOptions struct {
	shutdownTimeout time.Duration
	migrate         bool
}

func serve(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	if opts.migrate {
		if err := storage.Migrate(ctx, a.pool, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	limiter := httpx.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware()
	if a.rdb != nil {
		perMinute := int(cfg.RateLimitRPS * 60)
		limiter = httpx.NewRedisRateLimiter(a.rdb, perMinute, time.Minute, "clinicbook:rl").Middleware(logger, true)
	}
	authn := auth.Middleware(auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(newRouter(logger, a.api, authn, limiter, a.readyChecks()...), cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcSrv, health := grpcx.NewServer(logger)
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go a.sweeper.Run(ctx)
	go a.reconciler.Run(ctx)
	go a.publisher.Run(ctx)

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("scheduling service stopped")
	return nil
}

// newRouter assembles the HTTP surface. Health and metrics endpoints sit
// outside authentication and rate limiting.
func newRouter(logger *slog.Logger, api *handlers.Handler, authn, limiter httpx.Middleware, checks ...runtime.ReadyCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.WithRequestID, httpx.WithRecover(logger), httpx.WithAccessLog(logger), metrics.Middleware)

	runtime.MountHealth(r, checks...)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(limiter, httpx.WithBodyLimit(maxBodyBytes), httpx.WithTimeout(requestTimeout))
		api.Mount(r, authn)
	})
	return r
}
