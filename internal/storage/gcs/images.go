// Package gcs stores product images in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/go-faster/errors"
	"google.golang.org/api/option"

	"github.com/stelinglobal/storefront/internal/domain/product"
)

var _ product.ImageStore = (*ImageStore)(nil)

// Config selects the bucket and how its objects are addressed.
type Config struct {
	Bucket          string
	CredentialsFile string
	// PublicBaseURL overrides https://storage.googleapis.com/<bucket>.
	PublicBaseURL string
	CacheControl  string
}

type objectWriter interface {
	io.Writer
	Close() error
}

// ImageStore uploads images as publicly readable objects.
type ImageStore struct {
	client    *storage.Client
	bucket    string
	baseURL   string
	cache     string
	newWriter func(ctx context.Context, object, contentType, cacheControl string) objectWriter
}

// New creates an ImageStore with its own storage client.
func New(ctx context.Context, cfg Config) (*ImageStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create storage client")
	}

	s := newImageStore(cfg)
	s.client = client
	s.newWriter = func(ctx context.Context, object, contentType, cacheControl string) objectWriter {
		w := client.Bucket(cfg.Bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		w.CacheControl = cacheControl
		return w
	}
	return s, nil
}

func newImageStore(cfg Config) *ImageStore {
	base := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}
	cache := cfg.CacheControl
	if cache == "" {
		cache = "public, max-age=3600"
	}
	return &ImageStore{bucket: cfg.Bucket, baseURL: base, cache: cache}
}

// Put writes data to objectPath and returns its public URL.
func (s *ImageStore) Put(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	w := s.newWriter(ctx, objectPath, contentType, s.cache)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "write %s", objectPath)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "finalize %s", objectPath)
	}
	return s.PublicURL(objectPath), nil
}

// PublicURL returns the URL an object is served from.
func (s *ImageStore) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, strings.TrimPrefix(objectPath, "/"))
}

// Close releases the storage client.
func (s *ImageStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
