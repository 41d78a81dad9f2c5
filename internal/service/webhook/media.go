package webhook

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/service/storage"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
	"wadesk-backend/pkg/sanitize"
)

// BlobStore receives re-hosted media
type BlobStore interface {
	Put(ctx context.Context, folder string, obj *storage.Object) (string, error)
}

// MediaFetcher copies gateway media into the blob store
type MediaFetcher struct {
	client   *http.Client
	blob     BlobStore
	maxBytes int64
	timeout  time.Duration
}

// NewMediaFetcher creates a fetcher bounded by timeout and maxBytes
func NewMediaFetcher(blob BlobStore, timeout time.Duration, maxBytes int64) *MediaFetcher {
	return &MediaFetcher{
		client:   &http.Client{Timeout: timeout},
		blob:     blob,
		maxBytes: maxBytes,
		timeout:  timeout,
	}
}

// Rehost downloads body.URL into a temp file, uploads it to the inbound
// folder and returns the resulting media record.
func (f *MediaFetcher) Rehost(ctx context.Context, body *domain.GatewayBody) (*domain.Media, error) {
	start := time.Now()
	defer func() {
		metrics.MediaRehostDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, body.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid media url: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("media too large: %d bytes", resp.ContentLength)
	}

	tmp, err := os.CreateTemp("", "wadesk-media-*")
	if err != nil {
		return nil, fmt.Errorf("failed to stage media: %w", err)
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil {
			logger.Warn("Failed to remove staged media", zap.String("path", tmp.Name()), zap.Error(err))
		}
	}()

	size, err := io.Copy(tmp, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to stage media: %w", err)
	}
	if size > f.maxBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", f.maxBytes)
	}
	if size == 0 {
		return nil, fmt.Errorf("media is empty")
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind staged media: %w", err)
	}

	name := mediaName(body)
	contentType := body.MimeType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}

	key, err := f.blob.Put(ctx, storage.FolderInbound, &storage.Object{
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Body:        tmp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	return &domain.Media{
		Name:       name,
		Size:       size,
		StorageKey: key,
		MimeType:   contentType,
	}, nil
}

func mediaName(body *domain.GatewayBody) string {
	if name := sanitize.Filename(body.Name, ""); name != "" {
		return name
	}
	if u, err := url.Parse(body.URL); err == nil {
		return sanitize.Filename(u.Path, "file")
	}
	return "file"
}
