package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/shouni/manga-adventure-kit/pkg/prompts"
	"google.golang.org/genai"
)

// GeminiService は Gemini を使って顔の説明（テキストモデル）と画像生成（画像モデル）を行います。
type GeminiService struct {
	aiClient   ContentGenerator
	cache      ImageCacher
	expiration time.Duration
	textModel  string
	imageModel string
}

// NewGeminiService は GeminiService を初期化します。cache は nil を許容します。
func NewGeminiService(aiClient ContentGenerator, cache ImageCacher, cacheTTL time.Duration, textModel, imageModel string) (*GeminiService, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient (ContentGenerator) is required")
	}
	if textModel == "" || imageModel == "" {
		return nil, fmt.Errorf("textModel and imageModel are required")
	}
	return &GeminiService{
		aiClient:   aiClient,
		cache:      cache,
		expiration: cacheTTL,
		textModel:  textModel,
		imageModel: imageModel,
	}, nil
}

// Describe は顔写真の特徴を漫画家向けの説明文として返します。
// 同じ画像に対する説明はキャッシュされます。
func (s *GeminiService) Describe(ctx context.Context, image domain.EncodedImage) (string, error) {
	imgPart := toPart(image)
	if imgPart == nil {
		return "", fmt.Errorf("%w: face image is not an image", domain.ErrDecode)
	}

	cacheKey := cacheKeyFaceDescription + digest(image.Data)
	if s.cache != nil {
		if val, ok := s.cache.Get(cacheKey); ok {
			if desc, ok := val.(string); ok {
				slog.DebugContext(ctx, "顔の説明をキャッシュから取得しました")
				return desc, nil
			}
		}
	}

	parts := []*genai.Part{{Text: prompts.DescribeFaceInstruction}, imgPart}
	resp, err := s.aiClient.GenerateContent(ctx, s.textModel, userContents(parts), nil)
	if err != nil {
		return "", fmt.Errorf("%w: Gemini顔説明エラー: %v", domain.ErrUpstream, err)
	}

	desc := strings.TrimSpace(responseText(resp))
	if desc == "" {
		return "", domain.ErrEmptyResult
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, desc, s.expiration)
	}
	return desc, nil
}

// GenerateImage は指示文（と参照画像）から画像を 1 枚生成します。
func (s *GeminiService) GenerateImage(ctx context.Context, instruction string, conditioning *domain.EncodedImage) (*domain.ImageResponse, error) {
	parts := []*genai.Part{{Text: instruction}}
	if conditioning != nil {
		imgPart := toPart(*conditioning)
		if imgPart == nil {
			return nil, fmt.Errorf("%w: conditioning image is not an image", domain.ErrDecode)
		}
		parts = append(parts, imgPart)
	}

	slog.DebugContext(ctx, "Gemini画像生成リクエスト", "model", s.imageModel, "parts", len(parts))

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{responseModalityImage},
		CandidateCount:     1,
	}
	resp, err := s.aiClient.GenerateContent(ctx, s.imageModel, userContents(parts), config)
	if err != nil {
		return nil, fmt.Errorf("%w: Gemini画像生成エラー: %v", domain.ErrUpstream, err)
	}

	out, err := parseToResponse(ctx, resp)
	if err != nil {
		return nil, err
	}
	return &domain.ImageResponse{Data: out.Data, MimeType: out.MimeType}, nil
}

func userContents(parts []*genai.Part) []*genai.Content {
	return []*genai.Content{{Role: roleUser, Parts: parts}}
}

// responseText は最初の候補のテキストパーツをすべて連結します。
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
