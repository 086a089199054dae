package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/avetra/ordergate/pkg/auth"
	"github.com/avetra/ordergate/pkg/health"
	"github.com/avetra/ordergate/pkg/httpmiddleware"
	"github.com/avetra/ordergate/pkg/ratelimit"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the gateway.
func Run(ctx context.Context, lg *zap.Logger, _ *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing gateway", zap.String("addr", cfg.Addr))

	limiter, closeLimiter := newLimiter(ctx, lg, cfg)
	defer closeLimiter()

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.SetReady(true)

	verifier := auth.NewTokenVerifier([]byte(cfg.JWTSecret))
	mux, err := Routes(cfg, verifier, healthSvc)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:  cfg.CORS.Origins,
				AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:  []string{"Content-Type", "Authorization"},
				ExposeHeaders: []string{httpmiddleware.HeaderRequestID},
			}),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.LogRequests(),
			httpmiddleware.RateLimit(limiter, httpmiddleware.ClientIP),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Gateway listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newLimiter picks the rate-limit store: Redis when configured so the window
// is shared across replicas, in-memory otherwise.
func newLimiter(ctx context.Context, lg *zap.Logger, cfg *Config) (ratelimit.Limiter, func()) {
	if cfg.Redis.Addr == "" {
		limiter := ratelimit.NewFixedWindow(cfg.RateLimit.Max, cfg.RateLimit.Window)
		limiter.StartCleanup(ctx, cfg.RateLimit.Window)
		return limiter, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		// The Redis limiter degrades to its local fallback per call anyway;
		// a dead Redis at boot is worth a loud line but not a crash.
		lg.Warn("redis unreachable, limiter will use local fallback",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	limiter := ratelimit.NewRedis(client, cfg.RateLimit.Max, cfg.RateLimit.Window)
	limiter.StartCleanup(ctx, cfg.RateLimit.Window)
	return limiter, func() { _ = client.Close() }
}
