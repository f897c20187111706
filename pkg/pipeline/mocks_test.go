package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
)

// mockService は generator.GenerationService のテスト用モックです。
type mockService struct {
	describeFunc func(ctx context.Context, img domain.EncodedImage) (string, error)
	generateFunc func(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error)

	mu               sync.Mutex
	lastInstruction  string
	lastConditioning *domain.EncodedImage
}

func (m *mockService) Describe(ctx context.Context, img domain.EncodedImage) (string, error) {
	if m.describeFunc != nil {
		return m.describeFunc(ctx, img)
	}
	return "oval face", nil
}

func (m *mockService) GenerateImage(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
	m.mu.Lock()
	m.lastInstruction = instruction
	m.lastConditioning = conditioning
	m.mu.Unlock()

	if m.generateFunc != nil {
		return m.generateFunc(ctx, instruction, conditioning)
	}
	return &domain.ImageResponse{Data: testPNG(nil, 8, 8), MimeType: "image/png"}, nil
}

// recordingReporter はフェーズ変化と Tick を記録します。
type recordingReporter struct {
	mu     sync.Mutex
	phases []State
	ticks  int
}

func (r *recordingReporter) OnPhaseChanged(phase State, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phase)
}

func (r *recordingReporter) OnTick(State, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks++
}

func (r *recordingReporter) snapshot() ([]State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.phases...), r.ticks
}

func testPNG(t *testing.T, w, h int) []byte {
	if t != nil {
		t.Helper()
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{0, 128, 255, 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
