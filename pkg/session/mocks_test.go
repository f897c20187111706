package session

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/stretchr/testify/require"
)

// mockService は generator.GenerationService のテスト用モックです。
type mockService struct {
	mu            sync.Mutex
	describeCalls int
	instructions  []string
	conditionings []*domain.EncodedImage

	describeErr error
	generateErr func(instruction string) error
}

func (m *mockService) Describe(ctx context.Context, img domain.EncodedImage) (string, error) {
	m.mu.Lock()
	m.describeCalls++
	m.mu.Unlock()
	if m.describeErr != nil {
		return "", m.describeErr
	}
	return "narrow eyes, sharp jaw", nil
}

func (m *mockService) GenerateImage(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
	m.mu.Lock()
	m.instructions = append(m.instructions, instruction)
	m.conditionings = append(m.conditionings, conditioning)
	m.mu.Unlock()

	if m.generateErr != nil {
		if err := m.generateErr(instruction); err != nil {
			return nil, err
		}
	}
	return &domain.ImageResponse{Data: testPNG(nil, 2048, 1024), MimeType: "image/png"}, nil
}

func (m *mockService) lastInstruction() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.instructions) == 0 {
		return ""
	}
	return m.instructions[len(m.instructions)-1]
}

// mockFetcher は generator.ReferenceFetcher のテスト用モックです。
type mockFetcher struct {
	data []byte
	err  error
}

func (m *mockFetcher) FetchReference(ctx context.Context, rawURL string) ([]byte, error) {
	return m.data, m.err
}

// testPNG は単色の PNG を生成します。t が nil の場合はエラーで panic します。
func testPNG(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	if t != nil {
		require.NoError(t, err)
	} else if err != nil {
		panic(err)
	}
	return buf.Bytes()
}
