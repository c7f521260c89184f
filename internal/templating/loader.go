package templating

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxAssetSize = 20 << 20

// ObjectGetter reads an object from the media store by key.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// AssetLoader fetches frame and watermark images. HTTP(S) references are
// downloaded; anything else is treated as a media store key.
type AssetLoader struct {
	store  ObjectGetter
	client *http.Client
}

func NewAssetLoader(store ObjectGetter, client *http.Client) *AssetLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &AssetLoader{store: store, client: client}
}

func (l *AssetLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return l.download(ctx, ref)
	}
	if l.store == nil {
		return nil, fmt.Errorf("no media store for asset %q", ref)
	}
	return l.store.Get(ctx, strings.TrimPrefix(ref, "/"))
}

func (l *AssetLoader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	if len(data) > maxAssetSize {
		return nil, fmt.Errorf("asset %s exceeds %d bytes", url, maxAssetSize)
	}
	return data, nil
}
