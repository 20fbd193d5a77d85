package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrNameAndPriceRequired is returned when an admin save omits the product
// name or gives a non-positive price.
var ErrNameAndPriceRequired = errors.New("name and price are required")

// Service encapsulates catalog reads and admin maintenance.
type Service struct {
	repo   Repository
	images ImageStore
	now    func() time.Time
}

// NewService creates a catalog Service. images may be nil when uploads are
// not configured; UploadImages then fails.
func NewService(repo Repository, images ImageStore) *Service {
	return &Service{repo: repo, images: images, now: time.Now}
}

// List returns the catalog in creation order, narrowed by the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return f.Apply(products), nil
}

// Get returns a single product or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Prepare normalises a product for storage: the name is trimmed, a blank ID
// becomes "product-<unix-ms>", blank currency becomes the catalog currency
// and MOQ is at least one. Name and a positive price are required.
func Prepare(p *Product, now time.Time) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" || !p.Price.IsPositive() {
		return ErrNameAndPriceRequired
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("product-%d", now.UnixMilli())
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.MOQ < 1 {
		p.MOQ = 1
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	return nil
}

// Save inserts (isNew) or updates a product after Prepare.
func (s *Service) Save(ctx context.Context, p *Product, isNew bool) error {
	if err := Prepare(p, s.now()); err != nil {
		return err
	}

	if isNew {
		if err := s.repo.Insert(ctx, p); err != nil {
			return errors.Wrapf(err, "insert product %s", p.ID)
		}
		return nil
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return errors.Wrapf(err, "update product %s", p.ID)
	}
	return nil
}

// Delete removes a product from the catalog.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete product %s", id)
	}
	return nil
}

// UploadImages stores the image files of a batch and appends their URLs to
// the product. Nothing is appended unless every file was stored.
func (s *Service) UploadImages(ctx context.Context, id string, files []Upload) (*Product, error) {
	if s.images == nil {
		return nil, errors.New("image storage is not configured")
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	urls, err := uploadBatch(ctx, s.images, p.ID, files, s.now())
	if err != nil {
		return nil, err
	}

	p.Images = append(p.Images, urls...)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "update product %s", id)
	}
	return p, nil
}

// MoveImage reorders a product's images. The first image is the main photo.
func (s *Service) MoveImage(ctx context.Context, id string, from, to int) (*Product, error) {
	return s.editImages(ctx, id, func(images []string) ([]string, error) {
		return MoveImage(images, from, to)
	})
}

// RemoveImage drops the image at index i from a product.
func (s *Service) RemoveImage(ctx context.Context, id string, i int) (*Product, error) {
	return s.editImages(ctx, id, func(images []string) ([]string, error) {
		return RemoveImage(images, i)
	})
}

// AddImageURL appends an externally hosted image URL.
func (s *Service) AddImageURL(ctx context.Context, id, url string) (*Product, error) {
	return s.editImages(ctx, id, func(images []string) ([]string, error) {
		url = strings.TrimSpace(url)
		if url == "" {
			return images, nil
		}
		return append(images, url), nil
	})
}

func (s *Service) editImages(ctx context.Context, id string, edit func([]string) ([]string, error)) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	images, err := edit(p.Images)
	if err != nil {
		return nil, err
	}
	p.Images = images
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "update product %s", id)
	}
	return p, nil
}
