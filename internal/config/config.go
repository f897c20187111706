package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shouni/go-utils/envutil"
	libcfg "github.com/shouni/manga-adventure-kit/pkg/config"
)

const (
	DefaultOutputDir = "output"
	DefaultStoryFile = "examples/story.json"
)

// Config は環境変数から読み込まれるプロセス全体の設定です。
type Config struct {
	GeminiAPIKey string
	Generation   libcfg.Config

	Options RunOptions
}

// RunOptions は CLI フラグから渡される実行時のパラメータです。
type RunOptions struct {
	StoryLocation string // --story
	FaceFile      string // --face
	FaceURL       string // --face-url
	OutputDir     string // --output-dir

	// キャラクター属性
	Gender      string
	HairStyle   string
	HairColor   string
	Personality string
	Outfit      string
	Weapon      string
}

// LoadConfig は .env（存在すれば）と環境変数から設定を読み込みます。
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(".env の読み込みに失敗しました", "error", err)
	}

	def := libcfg.DefaultConfig()
	gen := def
	gen.TextModel = stringEnv("GEMINI_MODEL", def.TextModel)
	gen.ImageModel = stringEnv("IMAGE_GEMINI_MODEL", def.ImageModel)
	gen.RequestTimeout = durationEnv("REQUEST_TIMEOUT", def.RequestTimeout)
	gen.HTTPTimeout = durationEnv("HTTP_TIMEOUT", def.HTTPTimeout)
	gen.RateInterval = durationEnv("RATE_INTERVAL", def.RateInterval)
	gen.MaxDimension = intEnv("MAX_IMAGE_DIMENSION", def.MaxDimension)
	gen.Concurrency = intEnv("STORYBOARD_CONCURRENCY", def.Concurrency)
	gen.Quality = floatEnv("IMAGE_QUALITY", def.Quality)
	gen.CostPerImage = floatEnv("COST_PER_IMAGE", def.CostPerImage)

	return &Config{
		GeminiAPIKey: envutil.GetEnv("GEMINI_API_KEY", ""),
		Generation:   gen,
	}
}

// stringEnv は空文字も未設定として扱います。
func stringEnv(key, def string) string {
	if v := envutil.GetEnv(key, ""); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		slog.Warn("環境変数の値が不正なためデフォルト値を使います", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}

func intEnv(key string, def int) int {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		slog.Warn("環境変数の値が不正なためデフォルト値を使います", "key", key, "value", raw, "default", def)
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		slog.Warn("環境変数の値が不正なためデフォルト値を使います", "key", key, "value", raw, "default", def)
		return def
	}
	return f
}
