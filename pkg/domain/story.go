package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Choice はシーンから次のシーンへの遷移です。
type Choice struct {
	Label string `json:"label" yaml:"label"`
	Next  string `json:"next" yaml:"next"`
}

// Scene はストーリーグラフの 1 ノードです。
// Terminal が true のシーンではリスタート以外の入力を受け付けません。
type Scene struct {
	ID       string   `json:"id,omitempty" yaml:"id,omitempty"`
	Title    string   `json:"title" yaml:"title"`
	Prompt   string   `json:"prompt" yaml:"prompt"`
	Terminal bool     `json:"gameOver,omitempty" yaml:"gameOver,omitempty"`
	Choices  []Choice `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// StoryGraph はシーン集合と開始シーンIDです。読み込み後は読み取り専用として扱います。
type StoryGraph struct {
	Start  string           `json:"start" yaml:"start"`
	Scenes map[string]Scene `json:"scenes" yaml:"scenes"`
}

// Scene は ID からシーンを引きます。
func (g *StoryGraph) Scene(id string) (Scene, bool) {
	if g == nil {
		return Scene{}, false
	}
	s, ok := g.Scenes[id]
	if ok {
		s.ID = id
	}
	return s, ok
}

// Validate は読み込み時の整合性検証を行います。グラフは変更しないため、複数のセッションから同時に呼び出せます。
// 未解決の遷移先はここでエラーになるため、走査中に発生することはありません。
func (g *StoryGraph) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: graph is nil", ErrInvalidGraph)
	}
	if strings.TrimSpace(g.Start) == "" {
		return fmt.Errorf("%w: start scene is not set", ErrInvalidGraph)
	}
	if len(g.Scenes) == 0 {
		return fmt.Errorf("%w: no scenes", ErrInvalidGraph)
	}
	if _, ok := g.Scenes[g.Start]; !ok {
		return fmt.Errorf("%w: start scene %q does not exist", ErrInvalidGraph, g.Start)
	}

	// エラーメッセージを決定論的にするためキー順に検証する
	for _, id := range g.SceneIDs() {
		scene := g.Scenes[id]
		if scene.ID != "" && scene.ID != id {
			return fmt.Errorf("%w: scene %q declares mismatching id %q", ErrInvalidGraph, id, scene.ID)
		}

		if !scene.Terminal && len(scene.Choices) == 0 {
			return fmt.Errorf("%w: scene %q is neither terminal nor has choices", ErrInvalidGraph, id)
		}
		for i, c := range scene.Choices {
			if strings.TrimSpace(c.Label) == "" {
				return fmt.Errorf("%w: scene %q choice %d has no label", ErrInvalidGraph, id, i)
			}
			if _, ok := g.Scenes[c.Next]; !ok {
				return fmt.Errorf("%w: scene %q choice %d refers to unknown scene %q", ErrInvalidGraph, id, i, c.Next)
			}
		}
	}
	return nil
}

// SceneIDs はソート済みのシーンID一覧を返します。
func (g *StoryGraph) SceneIDs() []string {
	ids := make([]string, 0, len(g.Scenes))
	for id := range g.Scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SingleSceneGraph は固定シナリオ 1 枚だけのグラフを作ります。
// 単発のパネル生成も 1 シーンのグラフとして同じ経路で扱うためのものです。
func SingleSceneGraph(id, title, prompt string) *StoryGraph {
	return &StoryGraph{
		Start: id,
		Scenes: map[string]Scene{
			id: {ID: id, Title: title, Prompt: prompt, Terminal: true},
		},
	}
}
