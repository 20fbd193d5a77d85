package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stelinglobal/storefront/internal/domain/product"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
)

// idSet remembers product ids. The bloom filter answers most "never seen"
// lookups; the map settles its false positives.
type idSet struct {
	filter *bloom.BloomFilter
	ids    map[string]struct{}
}

func newIDSet() *idSet {
	return &idSet{
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		ids:    make(map[string]struct{}),
	}
}

// add records id and reports whether it was new.
func (s *idSet) add(id string) bool {
	if s.filter.TestString(id) {
		if _, ok := s.ids[id]; ok {
			return false
		}
	}
	s.filter.AddString(id)
	s.ids[id] = struct{}{}
	return true
}

// readFeeds decodes every feed concurrently and returns their products in
// file order with duplicate ids dropped; the first occurrence wins.
func readFeeds(ctx context.Context, lg *zap.Logger, files []string) ([]product.Product, error) {
	feeds := make([][]product.Product, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			products, err := readFeed(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			lg.Info("Feed decoded", zap.String("path", path), zap.Int("products", len(products)))
			feeds[i] = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := newIDSet()
	var out []product.Product
	for i, feed := range feeds {
		for _, p := range feed {
			if p.ID == "" {
				lg.Warn("Skipping product without id", zap.String("path", files[i]), zap.String("name", p.Name))
				continue
			}
			if !seen.add(p.ID) {
				lg.Warn("Skipping duplicate product", zap.String("path", files[i]), zap.String("id", p.ID))
				continue
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// readFeed decodes a JSON array of products, gunzipping .gz files.
func readFeed(ctx context.Context, path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	dec := json.NewDecoder(r)
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return nil, errors.New("feed must be a JSON array")
	}
	var products []product.Product
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var p product.Product
		if err := dec.Decode(&p); err != nil {
			return nil, errors.Wrapf(err, "decode product %d", len(products))
		}
		products = append(products, p)
	}
	return products, nil
}

type productUpserter interface {
	Upsert(ctx context.Context, p *product.Product) error
}

// upsertProducts prepares and stores products with bounded concurrency.
// Products failing preparation are skipped; a storage error stops the import.
func upsertProducts(ctx context.Context, lg *zap.Logger, repo productUpserter, products []product.Product, workers int, now time.Time) (int, error) {
	valid := make([]product.Product, 0, len(products))
	for _, p := range products {
		if err := product.Prepare(&p, now); err != nil {
			lg.Warn("Skipping invalid product", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		valid = append(valid, p)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range valid {
		g.Go(func() error {
			if err := repo.Upsert(ctx, &valid[i]); err != nil {
				return errors.Wrapf(err, "upsert %s", valid[i].ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(valid), nil
}
