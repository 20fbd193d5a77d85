package gcs

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	buf         bytes.Buffer
	contentType string
	closeErr    error
	closed      bool
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newTestStore(cfg Config, w *fakeWriter) *ImageStore {
	s := newImageStore(cfg)
	s.newWriter = func(_ context.Context, _, contentType, _ string) objectWriter {
		w.contentType = contentType
		return w
	}
	return s
}

func TestImageStore_Put(t *testing.T) {
	w := &fakeWriter{}
	s := newTestStore(Config{Bucket: "product-images"}, w)

	url, err := s.Put(context.Background(), "pot/1700000000000-abc.jpg", "image/jpeg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/product-images/pot/1700000000000-abc.jpg", url)
	assert.Equal(t, "jpeg", w.buf.String())
	assert.Equal(t, "image/jpeg", w.contentType)
	assert.True(t, w.closed)
}

func TestImageStore_PutCloseError(t *testing.T) {
	w := &fakeWriter{closeErr: errors.New("permission denied")}
	s := newTestStore(Config{Bucket: "b"}, w)

	_, err := s.Put(context.Background(), "pot/a.png", "image/png", []byte("png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestImageStore_PublicURL(t *testing.T) {
	s := newImageStore(Config{Bucket: "b", PublicBaseURL: "https://cdn.stelin.in/"})
	assert.Equal(t, "https://cdn.stelin.in/pot/a.png", s.PublicURL("/pot/a.png"))
}
