package generator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"google.golang.org/genai"
)

func (c *GeminiImageCore) fetchImageData(ctx context.Context, rawURL string) ([]byte, error) {
	if safe, err := IsSafeURL(rawURL); err != nil || !safe {
		return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
	}
	data, err := c.httpClient.FetchBytes(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("参照画像のダウンロードに失敗しました: %w", err)
	}
	return data, nil
}

// toPart は画像を genai.Part (InlineData) に変換します。MIME タイプ未設定の場合は内容から判定します。
func toPart(img domain.EncodedImage) *genai.Part {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		slog.Warn("MIMEタイプが画像ではないためPartに変換できませんでした", "detected_mime_type", mimeType)
		return nil
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: img.Data}}
}

// parseToResponse は最初の候補から画像パーツを取り出します。
// サービスが応答したのに画像がない場合（拒否・安全フィルター）は ErrNoImageReturned を返します。
func parseToResponse(ctx context.Context, resp *genai.GenerateContentResponse) (*imageOutput, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", domain.ErrUpstream)
	}
	if len(resp.Candidates) == 0 {
		slog.WarnContext(ctx, "候補が返されませんでした", "prompt_feedback", resp.PromptFeedback)
		return nil, fmt.Errorf("%w: no candidates", domain.ErrNoImageReturned)
	}

	// 現在の仕様では、最初の候補 (Candidate) のみを利用する。
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &imageOutput{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
			}
		}
	}

	refusal := firstText(candidate)
	slog.WarnContext(ctx, "画像データが見つかりませんでした", "finish_reason", candidate.FinishReason, "text", refusal)
	if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		return nil, fmt.Errorf("%w: finish reason %s", domain.ErrNoImageReturned, candidate.FinishReason)
	}
	return nil, domain.ErrNoImageReturned
}

// firstText は候補の最初のテキストパーツを返します。
func firstText(candidate *genai.Candidate) string {
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}
