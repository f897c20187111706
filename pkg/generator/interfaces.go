package generator

import (
	"context"
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"google.golang.org/genai"
)

// GenerationService は顔の説明と画像生成を提供する外部サービスの窓口です。
// 複数セッションから同時に呼び出されても安全である必要があります。
type GenerationService interface {
	// Describe は顔写真から特徴のテキスト説明を返します。
	Describe(ctx context.Context, image domain.EncodedImage) (string, error)
	// GenerateImage は指示文と任意の参照画像から画像を 1 枚生成します。
	// 画像パーツのない応答は domain.ErrNoImageReturned、通信失敗は domain.ErrUpstream になります。
	GenerateImage(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error)
}

// ContentGenerator は Gemini の GenerateContent 呼び出しを抽象化します。*genai.Models が満たします。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ReferenceFetcher は URL で指定された画像を取得します。
type ReferenceFetcher interface {
	FetchReference(ctx context.Context, rawURL string) ([]byte, error)
}

// ImageCacher は、画像や説明文をキャッシュするためのインターフェースです。
type ImageCacher interface {
	// Get は、指定されたキーに紐づくアイテムを取得します。
	Get(key string) (any, bool)
	// Set は、指定されたキーと値、有効期限でアイテムを保存します。
	Set(key string, value any, d time.Duration)
}

// HTTPClient は、URLからデータを取得するためのインターフェースです。httpkit のクライアントが満たします。
type HTTPClient interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}
