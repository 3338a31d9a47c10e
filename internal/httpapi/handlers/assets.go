package handlers

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"renderbridge/internal/httpkit"
	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/ports"
	"renderbridge/internal/worker/processor"
	"renderbridge/internal/worker/util"
)

const (
	maxAssetBytes  = 64 << 20
	signedURLValid = 30 * time.Minute
)

// PostAsset stores an input image so requests can reference it with
// image_object_key.
func (h *Handler) PostAsset(w http.ResponseWriter, r *http.Request) error {
	if err := h.storageReady(); err != nil {
		return err
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAssetBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "assets.parse", "invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return errors.ValidationField("file", "file is required")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = processor.ExtFromMime(contentType)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(ext)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return errors.ValidationField("file", "only image uploads are accepted").WithField("content_type", contentType)
	}

	objectKey := "inputs/" + util.NewID("ast") + ext
	out, err := h.sp.PutObject(r.Context(), ports.PutObjectInput{
		ObjectKey:   objectKey,
		ContentType: contentType,
		Reader:      file,
		Size:        header.Size,
	})
	if err != nil {
		return errors.Wrap(err, "assets.put", "storage put failed").WithField("provider", h.sp.Provider())
	}

	h.log.FromContext(r.Context()).Info("asset stored", "object_key", out.ObjectKey, "size", out.Size)
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{
		"asset": map[string]any{
			"object_key": out.ObjectKey,
			"provider":   h.sp.Provider(),
			"mime":       contentType,
			"size_bytes": out.Size,
			"filename":   processor.SanitizeFilename(header.Filename),
		},
	})
	return nil
}

// StreamAsset serves the stored bytes of an asset.
func (h *Handler) StreamAsset(w http.ResponseWriter, r *http.Request) error {
	if err := h.storageReady(); err != nil {
		return err
	}
	objectKey := chi.URLParam(r, "*")

	rc, ct, size, err := h.sp.GetObject(r.Context(), objectKey)
	if err != nil {
		return err
	}
	defer rc.Close()

	if ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, _ = io.Copy(w, rc)
	return nil
}

// GetAssetURL returns a provider-signed URL when the provider has one.
func (h *Handler) GetAssetURL(w http.ResponseWriter, r *http.Request) error {
	if err := h.storageReady(); err != nil {
		return err
	}
	objectKey := chi.URLParam(r, "*")

	out, err := h.sp.GetSignedURL(r.Context(), objectKey, signedURLValid)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"object_key": objectKey,
		"url":        out.URL,
		"expires_at": out.ExpiresAt,
	})
	return nil
}

func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) error {
	if err := h.storageReady(); err != nil {
		return err
	}
	if err := h.sp.DeleteObject(r.Context(), chi.URLParam(r, "*")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// storageReady fails asset routes when no provider is configured.
func (h *Handler) storageReady() error {
	if h.sp == nil {
		return errors.Unavailable("storage")
	}
	return nil
}
