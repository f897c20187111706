package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/shouni/manga-adventure-kit/pkg/generator"
	"github.com/shouni/manga-adventure-kit/pkg/imgutil"
	"github.com/shouni/manga-adventure-kit/pkg/prompts"
)

// Options はオーケストレーターの動作設定です。ゼロ値の項目にはデフォルトが使われます。
type Options struct {
	MaxDimension   int
	Quality        float64
	CostPerImage   float64
	RequestTimeout time.Duration
	TickInterval   time.Duration
	Reporter       ProgressReporter
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = imgutil.DefaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = imgutil.DefaultQuality
	}
	if o.Reporter == nil {
		o.Reporter = NopReporter{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Orchestrator は 1 セッション分の生成パイプライン（describe → generate → panel）を管理します。
// キャラクター画像と実行中ステージの状態はこのインスタンスだけが所有します。
type Orchestrator struct {
	service generator.GenerationService
	opts    Options

	mu        sync.Mutex
	state     State
	lastErr   error
	character *domain.CharacterResult

	// 最後に開始された操作が状態を決める
	opSeq uint64
	// 同種の呼び出しは後勝ち。古い呼び出しの結果は破棄する
	describeSeq  uint64
	characterSeq uint64
}

// NewOrchestrator は生成サービスを注入してオーケストレーターを作成します。
func NewOrchestrator(service generator.GenerationService, opts Options) (*Orchestrator, error) {
	if service == nil {
		return nil, fmt.Errorf("service (GenerationService) is required")
	}
	return &Orchestrator{
		service: service,
		opts:    opts.withDefaults(),
		state:   StateIdle,
	}, nil
}

// State は現在の状態を返します。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError は最後に Errored へ遷移した原因を返します。
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Character はキャッシュ済みのキャラクター生成結果を返します。
func (o *Orchestrator) Character() (*domain.CharacterResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.character == nil {
		return nil, false
	}
	c := *o.character
	return &c, true
}

// DescribeFace は顔写真の特徴を説明文として取得します。
func (o *Orchestrator) DescribeFace(ctx context.Context, image domain.EncodedImage) (string, error) {
	start := time.Now()
	op, seq := o.begin(&o.describeSeq, StateDescribing, start)

	stop := startTicker(ctx, o.opts.Reporter, StateDescribing, start, o.opts.TickInterval)
	desc, err := callWithTimeout(o, ctx, func(callCtx context.Context) (string, error) {
		return o.service.Describe(callCtx, image)
	})
	stop()
	elapsed := time.Since(start)

	o.mu.Lock()
	stale := seq != o.describeSeq
	o.mu.Unlock()
	if stale {
		return "", o.superseded(ctx, domain.StageDescribe, elapsed)
	}
	if err != nil {
		return "", o.fail(ctx, op, domain.StageDescribe, start, err)
	}

	o.opts.Logger.InfoContext(ctx, "顔の説明を取得しました", "latency_ms", elapsed.Milliseconds(), "chars", len(desc))
	return desc, nil
}

// CreateCharacter は顔写真があれば説明を取得してから、キャラクター画像を生成します。
// 説明ステージを含む実行全体が 1 回の呼び出しとして扱われ、開始した時点で以前のキャラクターと
// 実行中の CreateCharacter / GenerateCharacter の結果は無効になります。
func (o *Orchestrator) CreateCharacter(ctx context.Context, attrs domain.AttributeSelection, face *domain.EncodedImage) (*domain.CharacterResult, error) {
	seq := o.reserveCharacterRun()

	var description string
	if face != nil {
		start := time.Now()
		desc, err := o.DescribeFace(ctx, *face)
		if err != nil {
			return nil, err
		}
		if o.characterStale(seq) {
			return nil, o.superseded(ctx, domain.StageDescribe, time.Since(start))
		}
		description = desc
	}

	return o.generateCharacter(ctx, seq, attrs, description)
}

// GenerateCharacter は属性（と顔の説明）からキャラクター画像を生成し、正規化したコピーをキャッシュします。
// 新しい呼び出しを開始した時点で、以前のキャラクターと実行中の呼び出しの結果は無効になります。
func (o *Orchestrator) GenerateCharacter(ctx context.Context, attrs domain.AttributeSelection, faceDescription string) (*domain.CharacterResult, error) {
	return o.generateCharacter(ctx, o.reserveCharacterRun(), attrs, faceDescription)
}

// reserveCharacterRun はキャラクター生成の世代を進め、キャッシュ済みのキャラクターを破棄します。
func (o *Orchestrator) reserveCharacterRun() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.characterSeq++
	o.character = nil
	return o.characterSeq
}

func (o *Orchestrator) characterStale(seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return seq != o.characterSeq
}

func (o *Orchestrator) generateCharacter(ctx context.Context, seq uint64, attrs domain.AttributeSelection, faceDescription string) (*domain.CharacterResult, error) {
	start := time.Now()
	if o.characterStale(seq) {
		return nil, o.superseded(ctx, domain.StageGenerateCharacter, 0)
	}
	op, _ := o.begin(nil, StateBuildingPrompt, start)

	prompt := prompts.BuildCharacterPrompt(attrs.Clone(), faceDescription)
	o.transition(op, StateGeneratingCharacter, start)
	o.opts.Logger.InfoContext(ctx, "キャラクター生成を開始します", "has_face", faceDescription != "")

	stop := startTicker(ctx, o.opts.Reporter, StateGeneratingCharacter, start, o.opts.TickInterval)
	resp, err := callWithTimeout(o, ctx, func(callCtx context.Context) (*domain.ImageResponse, error) {
		return o.service.GenerateImage(callCtx, prompt, nil)
	})
	stop()

	var normalized *domain.EncodedImage
	if err == nil {
		normalized, err = imgutil.Normalize(resp.Data, resp.MimeType, o.opts.MaxDimension, o.opts.Quality)
	}
	elapsed := time.Since(start)

	o.mu.Lock()
	if seq != o.characterSeq {
		o.mu.Unlock()
		return nil, o.superseded(ctx, domain.StageGenerateCharacter, elapsed)
	}
	if err != nil {
		o.mu.Unlock()
		return nil, o.fail(ctx, op, domain.StageGenerateCharacter, start, err)
	}

	result := &domain.CharacterResult{
		Display: domain.GenerationArtifact{
			Image: domain.EncodedImage{
				Data:         resp.Data,
				MimeType:     resp.MimeType,
				SourceWidth:  normalized.SourceWidth,
				SourceHeight: normalized.SourceHeight,
				Width:        normalized.SourceWidth,
				Height:       normalized.SourceHeight,
			},
			Prompt:  prompt,
			Latency: elapsed,
			CostUSD: o.opts.CostPerImage,
		},
		Reference: *normalized,
	}
	o.character = result
	o.mu.Unlock()

	o.transition(op, StateCharacterReady, start)
	o.opts.Logger.InfoContext(ctx, "キャラクター生成が完了しました",
		"latency_ms", elapsed.Milliseconds(),
		"source", fmt.Sprintf("%dx%d", normalized.SourceWidth, normalized.SourceHeight),
		"reference", fmt.Sprintf("%dx%d", normalized.Width, normalized.Height),
	)

	out := *result
	return &out, nil
}

// GeneratePanel はシーンの指示文とキャラクター画像からパネルを 1 枚生成します。
// 呼び出し同士で共有する可変状態はなく、シーンごとに独立して呼び出せます。
func (o *Orchestrator) GeneratePanel(ctx context.Context, characterImage domain.EncodedImage, scenePrompt string) (*domain.GenerationArtifact, error) {
	start := time.Now()
	op, _ := o.begin(nil, StateGeneratingPanel, start)

	if characterImage.IsEmpty() {
		return nil, o.fail(ctx, op, domain.StageGeneratePanel, start, domain.ErrCharacterNotReady)
	}

	stop := startTicker(ctx, o.opts.Reporter, StateGeneratingPanel, start, o.opts.TickInterval)
	resp, err := callWithTimeout(o, ctx, func(callCtx context.Context) (*domain.ImageResponse, error) {
		return o.service.GenerateImage(callCtx, scenePrompt, &characterImage)
	})
	stop()
	elapsed := time.Since(start)

	if err != nil {
		return nil, o.fail(ctx, op, domain.StageGeneratePanel, start, err)
	}

	panel := domain.EncodedImage{Data: resp.Data, MimeType: resp.MimeType}
	if w, h, err := imgutil.Probe(resp.Data); err == nil {
		panel.SourceWidth, panel.SourceHeight = w, h
		panel.Width, panel.Height = w, h
	} else {
		o.opts.Logger.WarnContext(ctx, "パネル画像の寸法を取得できませんでした", "error", err)
	}

	o.transition(op, StatePanelReady, start)
	o.opts.Logger.InfoContext(ctx, "パネル生成が完了しました", "latency_ms", elapsed.Milliseconds())

	return &domain.GenerationArtifact{
		Image:   panel,
		Prompt:  scenePrompt,
		Latency: elapsed,
		CostUSD: o.opts.CostPerImage,
	}, nil
}

// begin は操作を登録し、状態を遷移させます。seq が nil でなければ同種の呼び出しの世代を進めます。
func (o *Orchestrator) begin(seq *uint64, state State, start time.Time) (op, gen uint64) {
	o.mu.Lock()
	o.opSeq++
	op = o.opSeq
	if seq != nil {
		*seq++
		gen = *seq
	}
	o.state = state
	o.mu.Unlock()

	o.opts.Reporter.OnPhaseChanged(state, time.Since(start))
	return op, gen
}

// transition は op が最新の操作である場合のみ状態を更新します。
func (o *Orchestrator) transition(op uint64, state State, start time.Time) {
	o.mu.Lock()
	if op != o.opSeq {
		o.mu.Unlock()
		return
	}
	o.state = state
	o.mu.Unlock()

	o.opts.Reporter.OnPhaseChanged(state, time.Since(start))
}

// fail はエラーを分類してステージ名と経過時間を付与し、Errored に遷移します。
func (o *Orchestrator) fail(ctx context.Context, op uint64, stage string, start time.Time, err error) error {
	elapsed := time.Since(start)
	stageErr := &domain.StageError{Stage: stage, Elapsed: elapsed, Err: classify(err)}

	o.mu.Lock()
	current := op == o.opSeq
	if current {
		o.state = StateErrored
		o.lastErr = stageErr
	}
	o.mu.Unlock()

	if current {
		o.opts.Reporter.OnPhaseChanged(StateErrored, elapsed)
	}
	o.opts.Logger.ErrorContext(ctx, "ステージが失敗しました", "stage", stage, "latency_ms", elapsed.Milliseconds(), "error", err)
	return stageErr
}

func (o *Orchestrator) superseded(ctx context.Context, stage string, elapsed time.Duration) error {
	o.opts.Logger.InfoContext(ctx, "古い呼び出しの結果を破棄しました", "stage", stage, "latency_ms", elapsed.Milliseconds())
	return &domain.StageError{Stage: stage, Elapsed: elapsed, Err: domain.ErrSuperseded}
}

// callWithTimeout は RequestTimeout が設定されていれば外部呼び出しに期限を付けます。
func callWithTimeout[T any](o *Orchestrator, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	if o.opts.RequestTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	return fn(callCtx)
}

// classify は外部呼び出しのエラーを既知の種類に揃えます。未知のエラーは通信失敗として扱います。
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrNoImageReturned),
		errors.Is(err, domain.ErrEmptyResult),
		errors.Is(err, domain.ErrUpstream),
		errors.Is(err, domain.ErrDecode),
		errors.Is(err, domain.ErrCharacterNotReady):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: request timed out: %v", domain.ErrUpstream, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
}
