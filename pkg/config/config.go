package config

import (
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/generator"
	"github.com/shouni/manga-adventure-kit/pkg/imgutil"
)

// デフォルト値の定義
const (
	DefaultTextModel       = "gemini-2.5-flash"
	DefaultImageModel      = "gemini-2.5-flash-image"
	DefaultCostPerImage    = generator.DefaultCostPerImage
	DefaultRequestTimeout  = 2 * time.Minute
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultTickInterval    = 500 * time.Millisecond
	DefaultRateInterval    = 5 * time.Second
	DefaultConcurrency     = 2
	DefaultCacheExpiration = 30 * time.Minute
	DefaultCacheCleanup    = 60 * time.Minute
)

// Config はライブラリとして利用する際の生成設定です。
type Config struct {
	TextModel      string
	ImageModel     string
	MaxDimension   int
	Quality        float64
	CostPerImage   float64
	RequestTimeout time.Duration
	HTTPTimeout    time.Duration
	TickInterval   time.Duration

	// ストーリーボード一括生成のスロットリング
	RateInterval time.Duration
	Concurrency  int

	CacheExpiration time.Duration
	CacheCleanup    time.Duration
}

// DefaultConfig はデフォルト値で埋めた Config を返します。
func DefaultConfig() Config {
	return Config{
		TextModel:       DefaultTextModel,
		ImageModel:      DefaultImageModel,
		MaxDimension:    imgutil.DefaultMaxDimension,
		Quality:         imgutil.DefaultQuality,
		CostPerImage:    DefaultCostPerImage,
		RequestTimeout:  DefaultRequestTimeout,
		HTTPTimeout:     DefaultHTTPTimeout,
		TickInterval:    DefaultTickInterval,
		RateInterval:    DefaultRateInterval,
		Concurrency:     DefaultConcurrency,
		CacheExpiration: DefaultCacheExpiration,
		CacheCleanup:    DefaultCacheCleanup,
	}
}
