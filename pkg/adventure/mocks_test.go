package adventure

import (
	"context"
	"sync"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
)

// mockPanelGenerator は PanelGenerator のテスト用モックです。
type mockPanelGenerator struct {
	mu      sync.Mutex
	prompts []string
	genFunc func(ctx context.Context, prompt string) (*domain.GenerationArtifact, error)
}

func (m *mockPanelGenerator) GeneratePanel(ctx context.Context, characterImage domain.EncodedImage, scenePrompt string) (*domain.GenerationArtifact, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, scenePrompt)
	m.mu.Unlock()

	if m.genFunc != nil {
		return m.genFunc(ctx, scenePrompt)
	}
	return &domain.GenerationArtifact{
		Image:  domain.EncodedImage{Data: []byte("panel:" + scenePrompt), MimeType: "image/png"},
		Prompt: scenePrompt,
	}, nil
}

func (m *mockPanelGenerator) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

var testCharacter = domain.EncodedImage{Data: []byte("character-jpeg"), MimeType: "image/jpeg"}

// A(非終端, B へ 1 択) → B(終端)
func abGraph() *domain.StoryGraph {
	return &domain.StoryGraph{
		Start: "A",
		Scenes: map[string]domain.Scene{
			"A": {Title: "Classroom", Prompt: "prompt-A", Choices: []domain.Choice{{Label: "Go to B", Next: "B"}}},
			"B": {Title: "Game over", Prompt: "prompt-B", Terminal: true},
		},
	}
}

// A → (B | C), C → A のループあり
func branchingGraph() *domain.StoryGraph {
	return &domain.StoryGraph{
		Start: "A",
		Scenes: map[string]domain.Scene{
			"A": {Title: "A", Prompt: "prompt-A", Choices: []domain.Choice{
				{Label: "to B", Next: "B"},
				{Label: "to C", Next: "C"},
			}},
			"B": {Title: "B", Prompt: "prompt-B", Terminal: true},
			"C": {Title: "C", Prompt: "prompt-C", Choices: []domain.Choice{{Label: "back", Next: "A"}}},
		},
	}
}
