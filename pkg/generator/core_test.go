package generator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{0, 0, 255, 255})
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestNewGeminiImageCore(t *testing.T) {
	_, err := NewGeminiImageCore(nil, nil, time.Hour)
	assert.Error(t, err, "httpClient が nil ならエラー")

	core, err := NewGeminiImageCore(&mockHTTPClient{}, nil, time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestGeminiImageCore_FetchReference(t *testing.T) {
	ctx := context.Background()
	// パブリックなIPリテラルなら名前解決なしで安全判定される
	const publicURL = "http://93.184.216.34/face.png"

	t.Run("キャッシュがない場合はダウンロードしてJPEGで保存する", func(t *testing.T) {
		cache := newMockCache()
		httpMock := &mockHTTPClient{data: pngBytes(t)}
		core, err := NewGeminiImageCore(httpMock, cache, time.Hour)
		require.NoError(t, err)

		data, err := core.FetchReference(ctx, publicURL)
		require.NoError(t, err)
		assert.Equal(t, 1, httpMock.calls)

		_, format, err := image.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)

		cached, ok := cache.Get(cacheKeyReference + publicURL)
		assert.True(t, ok, "should be cached")
		assert.Equal(t, data, cached)
	})

	t.Run("キャッシュがある場合はダウンロードをスキップする", func(t *testing.T) {
		cache := newMockCache()
		cache.Set(cacheKeyReference+publicURL, []byte("cached-jpeg"), time.Hour)
		httpMock := &mockHTTPClient{}
		core, _ := NewGeminiImageCore(httpMock, cache, time.Hour)

		data, err := core.FetchReference(ctx, publicURL)
		require.NoError(t, err)
		assert.Equal(t, []byte("cached-jpeg"), data)
		assert.Zero(t, httpMock.calls)
	})

	t.Run("ループバックはダウンロード前に拒否する", func(t *testing.T) {
		httpMock := &mockHTTPClient{data: pngBytes(t)}
		core, _ := NewGeminiImageCore(httpMock, nil, time.Hour)

		_, err := core.FetchReference(ctx, "http://127.0.0.1/evil.png")
		assert.Error(t, err)
		assert.Zero(t, httpMock.calls)
	})

	t.Run("ダウンロード失敗はエラーを返す", func(t *testing.T) {
		core, _ := NewGeminiImageCore(&mockHTTPClient{err: errors.New("404")}, nil, time.Hour)
		_, err := core.FetchReference(ctx, publicURL)
		assert.ErrorContains(t, err, "404")
	})

	t.Run("画像でない内容はエラーを返す", func(t *testing.T) {
		core, _ := NewGeminiImageCore(&mockHTTPClient{data: []byte("<html></html>")}, nil, time.Hour)
		_, err := core.FetchReference(ctx, publicURL)
		assert.Error(t, err)
	})
}
