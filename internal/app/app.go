// Package app wires the storefront's dependencies and runs its HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stelinglobal/storefront/internal/domain/auth"
	"github.com/stelinglobal/storefront/internal/domain/cart"
	"github.com/stelinglobal/storefront/internal/domain/checkout"
	"github.com/stelinglobal/storefront/internal/domain/inquiry"
	"github.com/stelinglobal/storefront/internal/domain/product"
	"github.com/stelinglobal/storefront/internal/handler"
	"github.com/stelinglobal/storefront/internal/payment/razorpay"
	"github.com/stelinglobal/storefront/internal/storage/gcs"
	"github.com/stelinglobal/storefront/internal/storage/postgres"
	"github.com/stelinglobal/storefront/pkg/health"
	"github.com/stelinglobal/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and background
// workers, and handles graceful shutdown.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	inquiryRepo := postgres.NewInquiryRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Image storage is optional; without a bucket uploads are refused.
	var images product.ImageStore
	if cfg.GCS.Bucket != "" {
		store, err := gcs.New(ctx, gcs.Config{
			Bucket:          cfg.GCS.Bucket,
			CredentialsFile: cfg.GCS.CredentialsFile,
			PublicBaseURL:   cfg.GCS.PublicBaseURL,
			CacheControl:    cfg.GCS.CacheControl,
		})
		if err != nil {
			return errors.Wrap(err, "create image store")
		}
		defer func() { _ = store.Close() }()
		images = store
	} else {
		lg.Warn("No image bucket configured, uploads disabled")
	}

	// Domain services.
	catalog := product.NewService(productRepo, images)
	carts := cart.NewRegistry(cartRepo, lg.Named("cart"))
	hub := inquiry.NewHub()
	inquiries := inquiry.NewService(inquiryRepo)
	listener := postgres.NewInquiryListener(pool, hub, lg.Named("inquiries"))
	gateway := razorpay.New(razorpay.Config{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
		Timeout:   cfg.Razorpay.Timeout,
	}, m.TracerProvider(), m.MeterProvider())
	orchestrator, err := checkout.New(checkout.Config{
		MerchantName:   cfg.Merchant.Name,
		ThemeColor:     cfg.Merchant.ThemeColor,
		Currency:       cfg.Merchant.Currency,
		WhatsAppNumber: cfg.Merchant.WhatsAppNumber,
	}, carts, gateway, orderRepo, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create checkout")
	}
	authn := auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))

	// Health checks. The gateway and the inquiry listener degrade features
	// but do not take the storefront out of rotation.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Check{Name: "razorpay", Kind: health.Readiness, Optional: true, Failures: 1,
		Func: health.ReadyCheck(gateway)})
	healthSvc.Add(health.Check{Name: "inquiry_listener", Kind: health.Readiness, Optional: true,
		Func: listener.Check})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.New(handler.Config{SecureCookie: cfg.SecureCookie},
		catalog, carts, orchestrator, inquiries, hub, authn)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.SessionHeader, handler.APIKeyHeader},
				ExposeHeaders:    []string{handler.SessionHeader, httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
		),
	}

	// Background workers stop with ctx.
	workers, workersCtx := errgroup.WithContext(ctx)
	workers.Go(func() error {
		return listener.Run(workersCtx)
	})
	workers.Go(func() error {
		carts.RunSweeper(workersCtx, cfg.Cart.SweepInterval, cfg.Cart.MaxIdle)
		return nil
	})
	workers.Go(func() error {
		purgeCarts(workersCtx, lg, cartRepo, cfg.Cart.PurgeInterval, cfg.Cart.Retention)
		return nil
	})

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
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	if err := workers.Wait(); err != nil {
		return errors.Wrap(err, "background workers")
	}
	return nil
}

// cartPurger deletes stored carts nobody touched within a retention interval.
type cartPurger interface {
	Purge(ctx context.Context, olderThan string) (int64, error)
}

func purgeCarts(ctx context.Context, lg *zap.Logger, repo cartPurger, interval time.Duration, retention string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.Purge(ctx, retention)
			if err != nil {
				lg.Warn("Purge stored carts", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Info("Purged stored carts", zap.Int64("count", n), zap.String("retention", retention))
			}
		}
	}
}
