package builder

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-http-kit/httpkit"
	"github.com/shouni/manga-adventure-kit/internal/config"
	"github.com/shouni/manga-adventure-kit/pkg/adventure"
	"github.com/shouni/manga-adventure-kit/pkg/generator"
	"github.com/shouni/manga-adventure-kit/pkg/pipeline"
	"github.com/shouni/manga-adventure-kit/pkg/session"
	"github.com/shouni/manga-adventure-kit/pkg/story"
	"google.golang.org/genai"
)

// AppContext は CLI の各コマンドが共有する依存関係を保持します。
// 生成サービスとキャッシュは全セッションで共有されます。
type AppContext struct {
	Config  *config.Config
	Service generator.GenerationService
	Fetcher generator.ReferenceFetcher
	Loader  *story.Loader
}

// InitializeAIClient は Gemini API クライアントを初期化し、GenerateContent の窓口を返します。
func InitializeAIClient(ctx context.Context, apiKey string) (generator.ContentGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("APIキーが設定されていません")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return client.Models, nil
}

// NewAppContext は AI クライアントを初期化して AppContext を構築します。
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	aiClient, err := InitializeAIClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	return BuildAppContext(cfg, aiClient)
}

// BuildAppContext は注入された AI クライアントで AppContext を構築します。
func BuildAppContext(cfg *config.Config, aiClient generator.ContentGenerator) (*AppContext, error) {
	gen := cfg.Generation
	httpClient := httpkit.New(gen.HTTPTimeout)
	imgCache := cache.New(gen.CacheExpiration, gen.CacheCleanup)

	core, err := generator.NewGeminiImageCore(httpClient, imgCache, gen.CacheExpiration)
	if err != nil {
		return nil, fmt.Errorf("画像取得コアの初期化に失敗しました: %w", err)
	}

	service, err := generator.NewGeminiService(aiClient, imgCache, gen.CacheExpiration, gen.TextModel, gen.ImageModel)
	if err != nil {
		return nil, fmt.Errorf("生成サービスの初期化に失敗しました: %w", err)
	}

	return &AppContext{
		Config:  cfg,
		Service: service,
		Fetcher: core,
		Loader:  story.NewLoader(httpClient),
	}, nil
}

// NewSession は共有サービスを使う新しいセッションを作成します。
func (a *AppContext) NewSession(reporter pipeline.ProgressReporter) (*session.Session, error) {
	return session.New(a.Service, a.Fetcher, a.Config.Generation, reporter)
}

// NewStoryboard は設定のレート・並列数でストーリーボード生成器を作成します。
func (a *AppContext) NewStoryboard(panels adventure.PanelGenerator) *adventure.Storyboard {
	return adventure.NewStoryboard(panels, a.Config.Generation.RateInterval, a.Config.Generation.Concurrency)
}
