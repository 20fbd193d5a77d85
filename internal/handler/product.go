package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/stelinglobal/storefront/internal/domain/product"
)

func (h *Handler) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, product.Categories)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.catalog.List(r.Context(), product.Filter{
		Category: q.Get("category"),
		Search:   q.Get("q"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decodeJSON(r, &p); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.catalog.Save(r.Context(), &p, true); err != nil {
		fail(w, r, err)
		return
	}
	audit(r.Context(), "Product created", zap.String("product_id", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decodeJSON(r, &p); err != nil {
		fail(w, r, err)
		return
	}
	p.ID = r.PathValue("id")
	if err := h.catalog.Save(r.Context(), &p, false); err != nil {
		fail(w, r, err)
		return
	}
	audit(r.Context(), "Product updated", zap.String("product_id", p.ID))
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	audit(r.Context(), "Product deleted", zap.String("product_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// uploadImages accepts a multipart batch under the "images" field. Files
// that are not images are dropped by the catalog; a storage failure fails the
// whole batch with the storage's message.
func (h *Handler) uploadImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		fail(w, r, &badRequest{msg: "invalid multipart form"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["images"]
	files := make([]product.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			fail(w, r, errors.Wrapf(err, "open %s", fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			fail(w, r, errors.Wrapf(err, "read %s", fh.Filename))
			return
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		files = append(files, product.Upload{
			Filename:    fh.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}

	p, err := h.catalog.UploadImages(r.Context(), r.PathValue("id"), files)
	if err != nil {
		if status, _ := errorStatus(err); status == http.StatusInternalServerError {
			zctx.From(r.Context()).Warn("Image upload failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) addImageURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.AddImageURL(r.Context(), r.PathValue("id"), req.URL)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) moveImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.MoveImage(r.Context(), r.PathValue("id"), req.From, req.To)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) removeImage(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		fail(w, r, &badRequest{msg: "image index must be an integer"})
		return
	}
	p, err := h.catalog.RemoveImage(r.Context(), r.PathValue("id"), i)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
