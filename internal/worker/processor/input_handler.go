package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/ports"
)

// Uploader stores input images on the render server.
type Uploader interface {
	UploadImage(ctx context.Context, data []byte, name string) (string, error)
}

// InputHandler acquires input images and uploads them to the render server.
type InputHandler struct {
	uploader     Uploader
	httpClient   *http.Client
	sp           ports.StorageProvider
	maxBytes     int64
	fetchTimeout time.Duration
	log          *logger.Logger
}

// NewInputHandler returns an InputHandler. sp may be nil, which disables
// object-key inputs.
func NewInputHandler(uploader Uploader, httpClient *http.Client, sp ports.StorageProvider, maxBytes int64, fetchTimeout time.Duration, log *logger.Logger) *InputHandler {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &InputHandler{
		uploader:     uploader,
		httpClient:   httpClient,
		sp:           sp,
		maxBytes:     maxBytes,
		fetchTimeout: fetchTimeout,
		log:          log,
	}
}

// UploadSingle acquires src and uploads it. Any failure is returned.
func (ih *InputHandler) UploadSingle(ctx context.Context, src ImageSource) (string, error) {
	data, err := ih.acquire(ctx, src)
	if err != nil {
		return "", err
	}
	return ih.uploader.UploadImage(ctx, data, SanitizeFilename(src.Filename))
}

// UploadList uploads every item independently. A failing item is recorded
// and the rest are still attempted. names keeps the order of the items that
// succeeded.
func (ih *InputHandler) UploadList(ctx context.Context, items []json.RawMessage) (names []string, errs []error) {
	for i, raw := range items {
		if ctx.Err() != nil {
			errs = append(errs, errors.Acquisition(fmt.Sprintf("images[%d]", i), ctx.Err()))
			continue
		}

		var item ImageItem
		if err := json.Unmarshal(raw, &item); err != nil {
			errs = append(errs, errors.ValidationField(fmt.Sprintf("images[%d]", i), "each item in `images` must be an object"))
			continue
		}
		name := strings.TrimSpace(item.Name)
		if name == "" || strings.TrimSpace(item.Image) == "" {
			errs = append(errs, errors.ValidationField(fmt.Sprintf("images[%d]", i), "each image must have `name` and `image`"))
			continue
		}

		data, err := DecodeBase64Image(item.Image)
		if err != nil {
			errs = append(errs, errors.Acquisition(name, err))
			continue
		}
		stored, err := ih.uploader.UploadImage(ctx, data, SanitizeFilename(name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		names = append(names, stored)
	}

	if len(errs) > 0 {
		ih.log.FromContext(ctx).Warn("some input images failed", "uploaded", len(names), "failed", len(errs))
	}
	return names, errs
}

func (ih *InputHandler) acquire(ctx context.Context, src ImageSource) ([]byte, error) {
	switch src.Kind {
	case SourceURL:
		data, err := ih.download(ctx, src.Value)
		if err != nil {
			return nil, errors.Acquisition(src.Value, err)
		}
		return data, nil

	case SourceBase64:
		data, err := DecodeBase64Image(src.Value)
		if err != nil {
			return nil, errors.Acquisition("image_base64", err)
		}
		return data, nil

	case SourceObjectKey:
		data, err := ih.fromStorage(ctx, src.Value)
		if err != nil {
			return nil, errors.Acquisition(src.Value, err)
		}
		return data, nil

	default:
		return nil, errors.Acquisition(src.Kind, fmt.Errorf("unsupported image source %q", src.Kind))
	}
}

func (ih *InputHandler) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, ih.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := ih.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("image url returned http %d", res.StatusCode)
	}
	return ih.readLimited(res.Body)
}

func (ih *InputHandler) fromStorage(ctx context.Context, objectKey string) ([]byte, error) {
	if ih.sp == nil {
		return nil, fmt.Errorf("no storage provider configured")
	}
	rc, _, _, err := ih.sp.GetObject(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ih.readLimited(rc)
}

func (ih *InputHandler) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, ih.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > ih.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", ih.maxBytes)
	}
	return data, nil
}
