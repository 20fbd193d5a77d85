// Command api-server runs the storefront HTTP API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/stelinglobal/storefront/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		lg.Info("Configuration loaded",
			zap.String("merchant", cfg.Merchant.Name),
			zap.Bool("gateway", cfg.Razorpay.KeyID != ""),
			zap.Bool("image_uploads", cfg.GCS.Bucket != ""),
		)
		return appkg.Run(ctx, lg.Named("storefront"), m, cfg)
	})
}
