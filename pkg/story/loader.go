package story

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/shouni/manga-adventure-kit/pkg/generator"
	"gopkg.in/yaml.v3"
)

// Fetcher は URL からストーリー定義を取得します。httpkit のクライアントが満たします。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Format はストーリー定義のシリアライズ形式です。
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Loader はローカルファイルまたは http(s) URL からストーリーグラフを読み込みます。
type Loader struct {
	fetcher Fetcher
}

// NewLoader は Loader を初期化します。fetcher が nil の場合、URL からは読み込めません。
func NewLoader(fetcher Fetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// Load は location のストーリーを読み込み、検証済みのグラフを返します。
func (l *Loader) Load(ctx context.Context, location string) (*domain.StoryGraph, error) {
	data, err := l.read(ctx, location)
	if err != nil {
		return nil, err
	}

	graph, err := Decode(data, DetectFormat(location))
	if err != nil {
		return nil, fmt.Errorf("ストーリーの解析に失敗しました (%s): %w", location, err)
	}

	slog.InfoContext(ctx, "ストーリーを読み込みました", "location", location, "start", graph.Start, "scenes", len(graph.Scenes))
	return graph, nil
}

func (l *Loader) read(ctx context.Context, location string) ([]byte, error) {
	if isRemote(location) {
		if l.fetcher == nil {
			return nil, fmt.Errorf("URLからの読み込みにはHTTPクライアントが必要です: %s", location)
		}
		if safe, err := generator.IsSafeURL(location); !safe {
			return nil, fmt.Errorf("安全でないURLのため読み込みを拒否しました: %w", err)
		}
		data, err := l.fetcher.FetchBytes(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("ストーリーの取得に失敗しました (%s): %w", location, err)
		}
		return data, nil
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("ストーリーファイルの読み込みに失敗しました: %w", err)
	}
	return data, nil
}

// Decode はバイト列をストーリーグラフに変換し、検証します。
func Decode(data []byte, format Format) (*domain.StoryGraph, error) {
	var graph domain.StoryGraph
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &graph); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGraph, err)
		}
	default:
		if err := json.Unmarshal(data, &graph); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGraph, err)
		}
	}

	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return &graph, nil
}

// DetectFormat は拡張子から形式を判定します。.yaml / .yml 以外は JSON とみなします。
func DetectFormat(location string) Format {
	p := location
	if u, err := url.Parse(location); err == nil && isRemote(location) {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

func isRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
