package adventure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
)

// PanelGenerator はシーンごとのパネル生成を行います。pipeline.Orchestrator が満たします。
type PanelGenerator interface {
	GeneratePanel(ctx context.Context, characterImage domain.EncodedImage, scenePrompt string) (*domain.GenerationArtifact, error)
}

// State はエンジンの状態です。
type State int

const (
	StateNotEntered State = iota
	// StateEntered はグラフに入ったが、まだ 1 枚もパネルが表示されていない状態（開始シーンの生成中・失敗時）です。
	StateEntered
	StateAtScene
	StateAtTerminalScene
)

func (s State) String() string {
	switch s {
	case StateNotEntered:
		return "not-entered"
	case StateEntered:
		return "entered"
	case StateAtScene:
		return "at-scene"
	case StateAtTerminalScene:
		return "at-terminal-scene"
	}
	return "unknown"
}

// HistoryEntry は漫画ストリップの 1 コマ（訪問したシーンと生成されたパネル）です。
type HistoryEntry struct {
	Scene domain.Scene
	Panel domain.GenerationArtifact
}

// FailedVisit はパネル生成に失敗した訪問です。同じ選択肢の再選択か Retry で再実行できます。
type FailedVisit struct {
	SceneID string
	Err     error
}

// Engine はストーリーグラフを走査し、シーンごとにパネルを生成します。
// 走査履歴とグラフ参照はこのインスタンスだけが所有します。
type Engine struct {
	panels PanelGenerator
	logger *slog.Logger

	mu        sync.Mutex
	graph     *domain.StoryGraph
	character domain.EncodedImage
	state     State
	current   string
	history   []HistoryEntry
	failed    *FailedVisit
	// 訪問と Restart ごとに進む世代。古い訪問の結果は破棄する
	visitSeq uint64
}

// NewEngine はパネル生成器を注入してエンジンを作成します。logger が nil なら slog.Default を使います。
func NewEngine(panels PanelGenerator, logger *slog.Logger) (*Engine, error) {
	if panels == nil {
		return nil, fmt.Errorf("panels (PanelGenerator) is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{panels: panels, logger: logger, state: StateNotEntered}, nil
}

// Enter は履歴を空にして開始シーンを訪問します。
// グラフは読み込み時に検証済みの前提ですが、ここでも整合性を確認します。
func (e *Engine) Enter(ctx context.Context, graph *domain.StoryGraph, characterImage domain.EncodedImage) error {
	if characterImage.IsEmpty() {
		return domain.ErrCharacterNotReady
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.visitSeq++
	e.graph = graph
	e.character = characterImage
	e.history = nil
	e.failed = nil
	e.current = ""
	e.state = StateEntered
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "アドベンチャーを開始します", "start", graph.Start, "scenes", len(graph.Scenes))
	return e.visit(ctx, graph.Start)
}

// Choose は現在のシーンの index 番目の選択肢を選びます。
func (e *Engine) Choose(ctx context.Context, index int) error {
	e.mu.Lock()
	scene, err := e.currentChoosableScene()
	if err == nil && (index < 0 || index >= len(scene.Choices)) {
		err = fmt.Errorf("%w: index %d out of range for scene %q", domain.ErrInvalidChoice, index, scene.ID)
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.visit(ctx, scene.Choices[index].Next)
}

// ChooseScene は遷移先のシーンIDで選択肢を選びます。
func (e *Engine) ChooseScene(ctx context.Context, nextSceneID string) error {
	e.mu.Lock()
	scene, err := e.currentChoosableScene()
	if err == nil {
		found := false
		for _, c := range scene.Choices {
			if c.Next == nextSceneID {
				found = true
				break
			}
		}
		if !found {
			err = fmt.Errorf("%w: scene %q has no choice leading to %q", domain.ErrInvalidChoice, scene.ID, nextSceneID)
		}
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.visit(ctx, nextSceneID)
}

// Retry は直前に失敗した訪問を再実行します。
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	failed := e.failed
	e.mu.Unlock()
	if failed == nil {
		return fmt.Errorf("%w: no failed scene to retry", domain.ErrInvalidChoice)
	}
	return e.visit(ctx, failed.SceneID)
}

// Restart は履歴を消去して NotEntered に戻ります。グラフとキャラクター画像は保持します。
func (e *Engine) Restart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visitSeq++
	e.history = nil
	e.failed = nil
	e.current = ""
	e.state = StateNotEntered
}

// State は現在の状態を返します。
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current は表示中のシーンを返します。まだ表示していなければ false です。
func (e *Engine) Current() (domain.Scene, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == "" {
		return domain.Scene{}, false
	}
	return e.graph.Scene(e.current)
}

// Choices は現在選択できる選択肢を宣言順に返します。終端シーンでは nil です。
func (e *Engine) Choices() []domain.Choice {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAtScene {
		return nil
	}
	scene, _ := e.graph.Scene(e.current)
	return append([]domain.Choice(nil), scene.Choices...)
}

// CanRestart は終端シーンに到達し、リスタートだけが受け付けられる状態かを返します。
func (e *Engine) CanRestart() bool {
	return e.State() == StateAtTerminalScene
}

// History は走査履歴のコピーを返します。
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry(nil), e.history...)
}

// Failed は直前の失敗した訪問を返します。
func (e *Engine) Failed() (FailedVisit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed == nil {
		return FailedVisit{}, false
	}
	return *e.failed, true
}

// currentChoosableScene は選択を受け付けられるシーンを返します。mu を保持して呼び出すこと。
func (e *Engine) currentChoosableScene() (domain.Scene, error) {
	switch e.state {
	case StateNotEntered:
		return domain.Scene{}, fmt.Errorf("%w: adventure not entered", domain.ErrInvalidChoice)
	case StateEntered:
		return domain.Scene{}, fmt.Errorf("%w: no scene displayed yet", domain.ErrInvalidChoice)
	case StateAtTerminalScene:
		return domain.Scene{}, fmt.Errorf("%w: scene %q is terminal", domain.ErrInvalidChoice, e.current)
	}
	scene, ok := e.graph.Scene(e.current)
	if !ok {
		return domain.Scene{}, fmt.Errorf("%w: %q", domain.ErrUnknownScene, e.current)
	}
	return scene, nil
}

// visit はシーンのパネルを生成し、成功すれば履歴に追加して現在のシーンを進めます。
// 失敗した場合は直前のシーンに留まり、失敗した訪問を記録します。
func (e *Engine) visit(ctx context.Context, sceneID string) error {
	e.mu.Lock()
	if e.state == StateNotEntered {
		e.mu.Unlock()
		return fmt.Errorf("%w: adventure not entered", domain.ErrInvalidChoice)
	}
	scene, ok := e.graph.Scene(sceneID)
	if !ok {
		e.mu.Unlock()
		return &domain.SceneError{SceneID: sceneID, Err: domain.ErrUnknownScene}
	}
	e.visitSeq++
	seq := e.visitSeq
	character := e.character
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "シーンを生成します", "scene", sceneID, "title", scene.Title)
	panel, err := e.panels.GeneratePanel(ctx, character, scene.Prompt)

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.visitSeq {
		e.logger.InfoContext(ctx, "古い訪問の結果を破棄しました", "scene", sceneID)
		return &domain.SceneError{SceneID: sceneID, Err: domain.ErrSuperseded}
	}
	if err != nil {
		e.failed = &FailedVisit{SceneID: sceneID, Err: err}
		e.logger.WarnContext(ctx, "シーンの生成に失敗しました", "scene", sceneID, "error", err)
		return &domain.SceneError{SceneID: sceneID, Err: err}
	}

	e.failed = nil
	e.history = append(e.history, HistoryEntry{Scene: scene, Panel: *panel})
	e.current = sceneID
	if scene.Terminal {
		e.state = StateAtTerminalScene
	} else {
		e.state = StateAtScene
	}
	return nil
}

// IsSuperseded は後続の操作により破棄された訪問のエラーかを判定します。
func IsSuperseded(err error) bool {
	return errors.Is(err, domain.ErrSuperseded)
}
