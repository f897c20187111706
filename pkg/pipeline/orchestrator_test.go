package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, svc *mockService, opts Options) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(svc, opts)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator(t *testing.T) {
	_, err := NewOrchestrator(nil, Options{})
	assert.Error(t, err)
}

func TestOrchestrator_GenerateCharacter(t *testing.T) {
	ctx := context.Background()

	t.Run("成功時は表示用の原画像と正規化済み参照画像を返しキャッシュする", func(t *testing.T) {
		original := testPNG(t, 200, 100)
		svc := &mockService{
			generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
				return &domain.ImageResponse{Data: original, MimeType: "image/png"}, nil
			},
		}
		o := newTestOrchestrator(t, svc, Options{MaxDimension: 50, CostPerImage: 0.039})

		attrs := domain.AttributeSelection{domain.AttrGender: "female", domain.AttrWeapon: "sword"}
		res, err := o.GenerateCharacter(ctx, attrs, "")
		require.NoError(t, err)

		assert.Equal(t, original, res.Display.Image.Data)
		assert.Equal(t, "image/png", res.Display.Image.MimeType)
		assert.Equal(t, 200, res.Display.Image.Width)
		assert.Equal(t, 0.039, res.Display.CostUSD)
		assert.Contains(t, res.Display.Prompt, "holding sword")
		assert.Equal(t, svc.lastInstruction, res.Display.Prompt)
		assert.Nil(t, svc.lastConditioning, "キャラクター生成はテキストのみ")

		assert.Equal(t, "image/jpeg", res.Reference.MimeType)
		assert.Equal(t, 50, res.Reference.Width)
		assert.Equal(t, 25, res.Reference.Height)

		cached, ok := o.Character()
		require.True(t, ok)
		assert.Equal(t, res.Reference.Data, cached.Reference.Data)
		assert.Equal(t, StateCharacterReady, o.State())
	})

	t.Run("顔の説明はプロンプト末尾に含まれる", func(t *testing.T) {
		svc := &mockService{}
		o := newTestOrchestrator(t, svc, Options{})

		res, err := o.GenerateCharacter(ctx, nil, "thick eyebrows")
		require.NoError(t, err)
		assert.Contains(t, res.Display.Prompt, "Facial features to replicate: thick eyebrows")
	})

	t.Run("画像のない応答はNoImageReturnedでありUpstreamではない", func(t *testing.T) {
		svc := &mockService{
			generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
				return nil, domain.ErrNoImageReturned
			},
		}
		o := newTestOrchestrator(t, svc, Options{})

		_, err := o.GenerateCharacter(ctx, nil, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNoImageReturned))
		assert.False(t, errors.Is(err, domain.ErrUpstream))

		var stageErr *domain.StageError
		require.True(t, errors.As(err, &stageErr))
		assert.Equal(t, domain.StageGenerateCharacter, stageErr.Stage)

		assert.Equal(t, StateErrored, o.State())
		assert.Equal(t, err, o.LastError())
		_, ok := o.Character()
		assert.False(t, ok)
	})

	t.Run("未分類のエラーはUpstreamに分類され経過時間が付く", func(t *testing.T) {
		svc := &mockService{
			generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
				time.Sleep(10 * time.Millisecond)
				return nil, errors.New("503 service unavailable")
			},
		}
		o := newTestOrchestrator(t, svc, Options{})

		_, err := o.GenerateCharacter(ctx, nil, "")
		assert.True(t, errors.Is(err, domain.ErrUpstream))

		var stageErr *domain.StageError
		require.True(t, errors.As(err, &stageErr))
		assert.GreaterOrEqual(t, stageErr.Elapsed, 10*time.Millisecond)
	})

	t.Run("タイムアウトはUpstreamとして返る", func(t *testing.T) {
		svc := &mockService{
			generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		o := newTestOrchestrator(t, svc, Options{RequestTimeout: 20 * time.Millisecond})

		_, err := o.GenerateCharacter(ctx, nil, "")
		assert.True(t, errors.Is(err, domain.ErrUpstream), "got %v", err)
	})

	t.Run("デコードできない画像はErrDecode", func(t *testing.T) {
		svc := &mockService{
			generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
				return &domain.ImageResponse{Data: []byte("not an image"), MimeType: "image/png"}, nil
			},
		}
		o := newTestOrchestrator(t, svc, Options{})

		_, err := o.GenerateCharacter(ctx, nil, "")
		assert.True(t, errors.Is(err, domain.ErrDecode), "got %v", err)
	})
}

// 先に開始した呼び出しが後から完了しても、キャッシュには後の呼び出しの結果だけが残る
func TestOrchestrator_GenerateCharacter_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	svc := &mockService{
		generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(started)
				<-release
				return &domain.ImageResponse{Data: testPNG(nil, 10, 10), MimeType: "image/png"}, nil
			}
			return &domain.ImageResponse{Data: testPNG(nil, 30, 10), MimeType: "image/png"}, nil
		},
	}
	o := newTestOrchestrator(t, svc, Options{})

	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = o.GenerateCharacter(ctx, domain.AttributeSelection{domain.AttrGender: "male"}, "")
	}()

	<-started
	second, err := o.GenerateCharacter(ctx, domain.AttributeSelection{domain.AttrGender: "female"}, "")
	require.NoError(t, err)

	close(release)
	<-done

	assert.True(t, errors.Is(firstErr, domain.ErrSuperseded), "got %v", firstErr)

	cached, ok := o.Character()
	require.True(t, ok)
	assert.Equal(t, 30, cached.Reference.SourceWidth)
	assert.Equal(t, second.Reference.Data, cached.Reference.Data)
	assert.Contains(t, cached.Display.Prompt, "female")
	assert.Equal(t, StateCharacterReady, o.State())
}

func TestOrchestrator_GenerateCharacter_InvalidatesCachedCharacter(t *testing.T) {
	ctx := context.Background()
	fail := false
	svc := &mockService{
		generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
			if fail {
				return nil, domain.ErrNoImageReturned
			}
			return &domain.ImageResponse{Data: testPNG(nil, 8, 8), MimeType: "image/png"}, nil
		},
	}
	o := newTestOrchestrator(t, svc, Options{})

	_, err := o.GenerateCharacter(ctx, nil, "")
	require.NoError(t, err)
	_, ok := o.Character()
	require.True(t, ok)

	fail = true
	_, err = o.GenerateCharacter(ctx, nil, "")
	require.Error(t, err)
	_, ok = o.Character()
	assert.False(t, ok, "新しい生成の開始で以前のキャラクターは無効になる")
}

func TestOrchestrator_CreateCharacter(t *testing.T) {
	ctx := context.Background()

	t.Run("顔写真があれば説明を指示文に含めて生成する", func(t *testing.T) {
		svc := &mockService{}
		o := newTestOrchestrator(t, svc, Options{})
		face := domain.EncodedImage{Data: testPNG(t, 16, 16), MimeType: "image/png"}

		result, err := o.CreateCharacter(ctx, domain.AttributeSelection{domain.AttrGender: "female"}, &face)
		require.NoError(t, err)
		assert.Contains(t, result.Display.Prompt, "oval face")
		assert.Equal(t, StateCharacterReady, o.State())
	})

	t.Run("説明ステージ中の新しい呼び出しが古い生成結果を無効にする", func(t *testing.T) {
		inGenerate := make(chan struct{})
		releaseGenerate := make(chan struct{})
		inDescribe := make(chan struct{})
		releaseDescribe := make(chan struct{})
		var describes, generates int32

		svc := &mockService{
			describeFunc: func(ctx context.Context, img domain.EncodedImage) (string, error) {
				if atomic.AddInt32(&describes, 1) == 2 {
					close(inDescribe)
					<-releaseDescribe
				}
				return "sharp jaw", nil
			},
			generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
				if atomic.AddInt32(&generates, 1) == 1 {
					close(inGenerate)
					<-releaseGenerate
				}
				return &domain.ImageResponse{Data: testPNG(nil, 12, 12), MimeType: "image/png"}, nil
			},
		}
		o := newTestOrchestrator(t, svc, Options{})
		face := domain.EncodedImage{Data: testPNG(t, 16, 16), MimeType: "image/png"}

		var firstErr, secondErr error
		firstDone := make(chan struct{})
		secondDone := make(chan struct{})
		go func() {
			defer close(firstDone)
			_, firstErr = o.CreateCharacter(ctx, nil, &face)
		}()
		<-inGenerate

		go func() {
			defer close(secondDone)
			_, secondErr = o.CreateCharacter(ctx, nil, &face)
		}()
		<-inDescribe

		close(releaseGenerate)
		<-firstDone
		assert.True(t, errors.Is(firstErr, domain.ErrSuperseded), "got %v", firstErr)
		_, ok := o.Character()
		assert.False(t, ok)

		close(releaseDescribe)
		<-secondDone
		require.NoError(t, secondErr)
		_, ok = o.Character()
		assert.True(t, ok)
	})
}

func TestOrchestrator_DescribeFace(t *testing.T) {
	ctx := context.Background()
	face := domain.EncodedImage{Data: []byte("jpeg"), MimeType: "image/jpeg"}

	t.Run("成功", func(t *testing.T) {
		o := newTestOrchestrator(t, &mockService{}, Options{})
		desc, err := o.DescribeFace(ctx, face)
		require.NoError(t, err)
		assert.Equal(t, "oval face", desc)
	})

	t.Run("空の説明はErrEmptyResult", func(t *testing.T) {
		svc := &mockService{
			describeFunc: func(ctx context.Context, img domain.EncodedImage) (string, error) {
				return "", domain.ErrEmptyResult
			},
		}
		o := newTestOrchestrator(t, svc, Options{})

		_, err := o.DescribeFace(ctx, face)
		assert.True(t, errors.Is(err, domain.ErrEmptyResult))

		var stageErr *domain.StageError
		require.True(t, errors.As(err, &stageErr))
		assert.Equal(t, domain.StageDescribe, stageErr.Stage)
	})
}

func TestOrchestrator_GeneratePanel(t *testing.T) {
	ctx := context.Background()

	t.Run("キャラクター画像を参照画像として渡す", func(t *testing.T) {
		svc := &mockService{}
		o := newTestOrchestrator(t, svc, Options{CostPerImage: 0.039})
		character := domain.EncodedImage{Data: []byte("jpeg"), MimeType: "image/jpeg"}

		art, err := o.GeneratePanel(ctx, character, "in the classroom")
		require.NoError(t, err)

		require.NotNil(t, svc.lastConditioning)
		assert.Equal(t, character.Data, svc.lastConditioning.Data)
		assert.Equal(t, "in the classroom", svc.lastInstruction)
		assert.Equal(t, "in the classroom", art.Prompt)
		assert.Equal(t, 8, art.Image.Width)
		assert.Equal(t, 0.039, art.CostUSD)
		assert.Equal(t, StatePanelReady, o.State())
	})

	t.Run("キャラクター画像がなければErrCharacterNotReady", func(t *testing.T) {
		o := newTestOrchestrator(t, &mockService{}, Options{})
		_, err := o.GeneratePanel(ctx, domain.EncodedImage{}, "x")
		assert.True(t, errors.Is(err, domain.ErrCharacterNotReady))
	})

	t.Run("拒否はNoImageReturned", func(t *testing.T) {
		svc := &mockService{
			generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
				return nil, domain.ErrNoImageReturned
			},
		}
		o := newTestOrchestrator(t, svc, Options{})
		_, err := o.GeneratePanel(ctx, domain.EncodedImage{Data: []byte("x"), MimeType: "image/jpeg"}, "x")
		assert.True(t, errors.Is(err, domain.ErrNoImageReturned))
		assert.Equal(t, StateErrored, o.State())
	})
}

func TestOrchestrator_ProgressReporter(t *testing.T) {
	ctx := context.Background()
	reporter := &recordingReporter{}
	svc := &mockService{
		generateFunc: func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
			time.Sleep(40 * time.Millisecond)
			return &domain.ImageResponse{Data: testPNG(nil, 8, 8), MimeType: "image/png"}, nil
		},
	}
	o := newTestOrchestrator(t, svc, Options{Reporter: reporter, TickInterval: 5 * time.Millisecond})

	_, err := o.GenerateCharacter(ctx, nil, "")
	require.NoError(t, err)

	phases, ticks := reporter.snapshot()
	assert.Equal(t, []State{StateBuildingPrompt, StateGeneratingCharacter, StateCharacterReady}, phases)
	assert.Greater(t, ticks, 0)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "generating-panel", StateGeneratingPanel.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateDescribing.InFlight())
	assert.False(t, StateCharacterReady.InFlight())
}
