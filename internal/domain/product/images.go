package product

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoImages is returned when an upload batch contains no image files.
	ErrNoImages = errors.New("only image files are allowed")
	// ErrImageIndex is returned when an image position is outside the list.
	ErrImageIndex = errors.New("image index out of range")
)

// maxParallelUploads bounds concurrent object writes per batch.
const maxParallelUploads = 4

// ImageStore persists image objects and returns their public URL.
type ImageStore interface {
	Put(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

// Upload is a single file submitted for a product.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// IsImage reports whether the upload declares an image content type.
func (u Upload) IsImage() bool {
	return strings.HasPrefix(u.ContentType, "image/")
}

// MoveImage returns a copy of images with the element at from moved to
// position to. Other elements keep their relative order.
func MoveImage(images []string, from, to int) ([]string, error) {
	if from < 0 || from >= len(images) || to < 0 || to >= len(images) {
		return nil, ErrImageIndex
	}
	out := make([]string, 0, len(images))
	out = append(out, images[:from]...)
	out = append(out, images[from+1:]...)

	moved := images[from]
	out = append(out[:to], append([]string{moved}, out[to:]...)...)
	return out, nil
}

// RemoveImage returns a copy of images without the element at index i.
func RemoveImage(images []string, i int) ([]string, error) {
	if i < 0 || i >= len(images) {
		return nil, ErrImageIndex
	}
	out := make([]string, 0, len(images)-1)
	out = append(out, images[:i]...)
	return append(out, images[i+1:]...), nil
}

// uploadBatch writes every image upload under the product's prefix and returns
// the public URLs in input order. Non-image files are skipped. The first failed
// write cancels the rest and the whole batch is reported as failed.
func uploadBatch(ctx context.Context, store ImageStore, productID string, files []Upload, now time.Time) ([]string, error) {
	images := make([]Upload, 0, len(files))
	for _, f := range files {
		if f.IsImage() {
			images = append(images, f)
		}
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	urls := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, f := range images {
		objectPath := productID + "/" + objectName(f.Filename, now)
		g.Go(func() error {
			url, err := store.Put(gctx, objectPath, f.ContentType, f.Data)
			if err != nil {
				return errors.Wrapf(err, "upload %s", f.Filename)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// objectName builds "<unix-ms>-<random>.<ext>" for an uploaded file.
func objectName(filename string, now time.Time) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = "bin"
	}
	suffix := strconv.FormatUint(rand.Uint64(), 36)
	return fmt.Sprintf("%d-%s.%s", now.UnixMilli(), suffix, ext)
}
