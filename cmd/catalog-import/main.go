// Command catalog-import loads product feeds into the catalog and can seed
// an admin API key.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/auth"
	"github.com/stelinglobal/storefront/internal/storage/postgres"
)

type config struct {
	DatabaseURL  string   `usage:"PostgreSQL connection URL (or DATABASE_URL)" flag:"database-url"`
	Files        []string `default:"db/seed/products.json" usage:"Product feeds (.json or .json.gz), comma separated" flag:"files"`
	Workers      int      `default:"8" usage:"Concurrent upserts" flag:"workers"`
	APIKeyName   string   `usage:"Seed a full-access admin API key under this name" flag:"api-key-name"`
	APIKeyPepper string   `usage:"HMAC pepper, must match the server's STORE_API_KEY_PEPPER" flag:"api-key-pepper"`
}

func main() {
	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	var cfg config
	if err := aconfig.LoaderFor(&cfg, aconfig.Config{EnvPrefix: "STORE", SkipFiles: true}).Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if cfg.APIKeyName != "" && cfg.APIKeyPepper == "" {
		lg.Fatal("API key pepper is required when seeding a key")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Catalog import failed", zap.Error(err))
	}
	lg.Info("Catalog import completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	products, err := readFeeds(ctx, lg, cfg.Files)
	if err != nil {
		return errors.Wrap(err, "read feeds")
	}
	lg.Info("Feeds read", zap.Int("products", len(products)))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	n, err := upsertProducts(ctx, lg, postgres.NewProductRepository(pool), products, cfg.Workers, time.Now())
	if err != nil {
		return errors.Wrap(err, "upsert products")
	}
	lg.Info("Products upserted", zap.Int("count", n))

	if cfg.APIKeyName == "" {
		return nil
	}
	key, err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), cfg.APIKeyName, []byte(cfg.APIKeyPepper))
	if err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Admin API key seeded", zap.String("name", cfg.APIKeyName))
	// The raw key is shown once; only its hash is stored.
	fmt.Println(key)
	return nil
}

// seedAPIKey stores a fresh full-access key under name and returns it.
func seedAPIKey(ctx context.Context, repo auth.Repository, name string, pepper []byte) (string, error) {
	key, err := auth.GenerateKey()
	if err != nil {
		return "", err
	}
	if err := repo.Upsert(ctx, &auth.APIKeyInfo{
		ID:      name,
		Name:    name,
		KeyHash: auth.Hash(pepper, key),
		Scopes:  auth.AllScopes,
	}); err != nil {
		return "", err
	}
	return key, nil
}
