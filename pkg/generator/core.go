package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/imgutil"
)

// GeminiImageCore は URL 指定の参照画像（顔写真など）の取得とキャッシュを担う基盤クラスです。
type GeminiImageCore struct {
	httpClient HTTPClient
	cache      ImageCacher
	expiration time.Duration
}

// NewGeminiImageCore は依存関係を注入して GeminiImageCore を初期化します。
func NewGeminiImageCore(httpClient HTTPClient, cache ImageCacher, cacheTTL time.Duration) (*GeminiImageCore, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	// cache は nil を許容（キャッシュなし動作）

	return &GeminiImageCore{
		httpClient: httpClient,
		cache:      cache,
		expiration: cacheTTL,
	}, nil
}

// FetchReference は URL から画像を取得し、JPEG に圧縮したバイト列を返します。
// 同じ URL の 2 回目以降はキャッシュから返します。
func (c *GeminiImageCore) FetchReference(ctx context.Context, rawURL string) ([]byte, error) {
	cacheKey := cacheKeyReference + rawURL
	if c.cache != nil {
		if val, ok := c.cache.Get(cacheKey); ok {
			if data, ok := val.([]byte); ok {
				return data, nil
			}
			slog.WarnContext(ctx, "キャッシュデータが不正な型です", "url", rawURL, "type", fmt.Sprintf("%T", val))
		}
	}

	data, err := c.fetchImageData(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	finalData, err := imgutil.CompressToJPEG(data, ImageCompressionQuality)
	if err != nil {
		return nil, fmt.Errorf("参照画像を画像として読み込めませんでした (%s): %w", rawURL, err)
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, finalData, c.expiration)
	}
	return finalData, nil
}
