package adventure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultRateBurst = 2

// Storyboard はグラフ内の全シーンのパネルを並列に事前生成します。
// 走査を伴わないため、分岐の確認やプレビューに使います。
type Storyboard struct {
	panels      PanelGenerator
	interval    time.Duration
	concurrency int
}

// NewStoryboard は Storyboard を初期化します。interval が 0 ならレート制限なし、concurrency が 0 以下なら無制限です。
func NewStoryboard(panels PanelGenerator, interval time.Duration, concurrency int) *Storyboard {
	return &Storyboard{
		panels:      panels,
		interval:    interval,
		concurrency: concurrency,
	}
}

// Render は全シーンのパネルをシーンID順で返します。1 シーンでも失敗すれば全体を失敗とします。
func (s *Storyboard) Render(ctx context.Context, graph *domain.StoryGraph, characterImage domain.EncodedImage) ([]HistoryEntry, error) {
	if characterImage.IsEmpty() {
		return nil, domain.ErrCharacterNotReady
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	ids := graph.SceneIDs()
	entries := make([]HistoryEntry, len(ids))
	eg, egCtx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		eg.SetLimit(s.concurrency)
	}

	var limiter *rate.Limiter
	if s.interval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.interval), defaultRateBurst)
	}

	slog.InfoContext(ctx, "ストーリーボードの生成を開始します", "scenes", len(ids), "concurrency", s.concurrency)

	for i, id := range ids {
		scene, _ := graph.Scene(id)
		eg.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(egCtx); err != nil {
					return err
				}
			}

			panel, err := s.panels.GeneratePanel(egCtx, characterImage, scene.Prompt)
			if err != nil {
				return &domain.SceneError{SceneID: id, Err: err}
			}
			entries[i] = HistoryEntry{Scene: scene, Panel: *panel}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("ストーリーボードの生成に失敗しました: %w", err)
	}
	return entries, nil
}
