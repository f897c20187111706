package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/shouni/manga-adventure-kit/pkg/adventure"
	"github.com/shouni/manga-adventure-kit/pkg/config"
	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/shouni/manga-adventure-kit/pkg/generator"
	"github.com/shouni/manga-adventure-kit/pkg/imgutil"
	"github.com/shouni/manga-adventure-kit/pkg/pipeline"
	"github.com/shouni/manga-adventure-kit/pkg/prompts"
)

// Session は利用者 1 人分の状態（属性選択・顔写真・キャラクター・アドベンチャー）を束ねます。
// 生成サービスは全セッションで共有されますが、状態はセッション間で共有しません。
type Session struct {
	id           string
	cfg          config.Config
	logger       *slog.Logger
	fetcher      generator.ReferenceFetcher
	orchestrator *pipeline.Orchestrator
	engine       *adventure.Engine

	mu    sync.Mutex
	attrs domain.AttributeSelection
	face  *domain.EncodedImage
}

// New はセッションを作成します。fetcher と reporter は nil を許容します。
func New(service generator.GenerationService, fetcher generator.ReferenceFetcher, cfg config.Config, reporter pipeline.ProgressReporter) (*Session, error) {
	id := ulid.Make().String()
	logger := slog.Default().With("session", id)

	orch, err := pipeline.NewOrchestrator(service, pipeline.Options{
		MaxDimension:   cfg.MaxDimension,
		Quality:        cfg.Quality,
		CostPerImage:   cfg.CostPerImage,
		RequestTimeout: cfg.RequestTimeout,
		TickInterval:   cfg.TickInterval,
		Reporter:       reporter,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("オーケストレーターの初期化に失敗しました: %w", err)
	}

	engine, err := adventure.NewEngine(orch, logger)
	if err != nil {
		return nil, fmt.Errorf("アドベンチャーエンジンの初期化に失敗しました: %w", err)
	}

	return &Session{
		id:           id,
		cfg:          cfg,
		logger:       logger,
		fetcher:      fetcher,
		orchestrator: orch,
		engine:       engine,
		attrs:        domain.AttributeSelection{},
	}, nil
}

// ID はセッションの識別子（ULID）を返します。
func (s *Session) ID() string { return s.id }

// SelectAttributes は属性を上書きします。空文字の値はその属性の選択解除です。
func (s *Session) SelectAttributes(attrs domain.AttributeSelection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range attrs {
		if v == "" {
			delete(s.attrs, k)
			continue
		}
		s.attrs[k] = v
	}
}

// Attributes は現在の属性選択のコピーを返します。
func (s *Session) Attributes() domain.AttributeSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs.Clone()
}

// UploadFace は顔写真を正規化して保持します。デコードできなければ domain.ErrDecode を返し、既存の顔写真は変更しません。
func (s *Session) UploadFace(data []byte, mimeType string) (*domain.EncodedImage, error) {
	face, err := imgutil.Normalize(data, mimeType, s.cfg.MaxDimension, s.cfg.Quality)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.face = face
	s.mu.Unlock()

	s.logger.Info("顔写真を設定しました",
		"source", fmt.Sprintf("%dx%d", face.SourceWidth, face.SourceHeight),
		"normalized", fmt.Sprintf("%dx%d", face.Width, face.Height),
	)
	out := *face
	return &out, nil
}

// UploadFaceURL は URL から顔写真を取得して UploadFace と同様に保持します。
func (s *Session) UploadFaceURL(ctx context.Context, rawURL string) (*domain.EncodedImage, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("URLからの顔写真取得は設定されていません")
	}
	data, err := s.fetcher.FetchReference(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("顔写真の取得に失敗しました: %w", err)
	}
	return s.UploadFace(data, imgutil.OutputMimeType)
}

// ClearFace は保持している顔写真を破棄します。
func (s *Session) ClearFace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.face = nil
}

// Face は保持している顔写真を返します。
func (s *Session) Face() (domain.EncodedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.face == nil {
		return domain.EncodedImage{}, false
	}
	return *s.face, true
}

// StartCharacterGeneration は顔写真があれば説明を取得してから、キャラクター画像を生成します。
// 説明ステージが失敗した場合は生成に進みません。新しい呼び出しは、説明ステージを含めて実行中の以前の呼び出しを無効にします。
func (s *Session) StartCharacterGeneration(ctx context.Context) (*domain.CharacterResult, error) {
	s.mu.Lock()
	attrs := s.attrs.Clone()
	var face *domain.EncodedImage
	if s.face != nil {
		f := *s.face
		face = &f
	}
	s.mu.Unlock()

	return s.orchestrator.CreateCharacter(ctx, attrs, face)
}

// Character はキャッシュ済みのキャラクターを返します。
func (s *Session) Character() (*domain.CharacterResult, bool) {
	return s.orchestrator.Character()
}

// PipelineState は生成パイプラインの状態を返します。
func (s *Session) PipelineState() pipeline.State {
	return s.orchestrator.State()
}

// EnterAdventure はキャッシュ済みキャラクターの参照画像でストーリーを開始します。
func (s *Session) EnterAdventure(ctx context.Context, graph *domain.StoryGraph) error {
	character, ok := s.orchestrator.Character()
	if !ok {
		return domain.ErrCharacterNotReady
	}
	return s.engine.Enter(ctx, graph, character.Reference)
}

// GenerateDefaultPanel は教室シナリオ 1 枚だけのグラフで開始し、そのパネルを返します。
func (s *Session) GenerateDefaultPanel(ctx context.Context) (*adventure.HistoryEntry, error) {
	graph := domain.SingleSceneGraph(prompts.DefaultPanelSceneID, prompts.DefaultPanelSceneTitle, prompts.DefaultPanelPrompt)
	if err := s.EnterAdventure(ctx, graph); err != nil {
		return nil, err
	}
	history := s.engine.History()
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: no panel recorded", domain.ErrUpstream)
	}
	entry := history[len(history)-1]
	return &entry, nil
}

// ChooseOption は現在のシーンの index 番目の選択肢を選びます。
func (s *Session) ChooseOption(ctx context.Context, index int) error {
	return s.engine.Choose(ctx, index)
}

// Retry は失敗したシーンの生成を再実行します。
func (s *Session) Retry(ctx context.Context) error {
	return s.engine.Retry(ctx)
}

// Restart はアドベンチャーの履歴を消去します。キャラクターは保持されます。
func (s *Session) Restart() {
	s.engine.Restart()
}

// AdventureState はアドベンチャーエンジンの状態を返します。
func (s *Session) AdventureState() adventure.State { return s.engine.State() }

// CurrentScene は表示中のシーンを返します。
func (s *Session) CurrentScene() (domain.Scene, bool) { return s.engine.Current() }

// Choices は選択可能な選択肢を返します。
func (s *Session) Choices() []domain.Choice { return s.engine.Choices() }

// History は漫画ストリップ（訪問履歴）を返します。
func (s *Session) History() []adventure.HistoryEntry { return s.engine.History() }

// CanRestart は終端シーンに到達しているかを返します。
func (s *Session) CanRestart() bool { return s.engine.CanRestart() }

// Orchestrator はストーリーボード生成などで PanelGenerator として使うためのオーケストレーターを返します。
func (s *Session) Orchestrator() *pipeline.Orchestrator { return s.orchestrator }
