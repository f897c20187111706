package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/shouni/manga-adventure-kit/internal/builder"
	"github.com/shouni/manga-adventure-kit/internal/config"
	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"github.com/shouni/manga-adventure-kit/pkg/pipeline"
	"github.com/shouni/manga-adventure-kit/pkg/session"
)

// newSession は AppContext とセッションを構築し、フラグの属性と顔写真を反映します。
func newSession(ctx context.Context) (*builder.AppContext, *session.Session, error) {
	app, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var reporter pipeline.ProgressReporter = newTerminalReporter(os.Stderr)
	if verbose {
		reporter = pipeline.LogReporter{}
	}
	s, err := app.NewSession(reporter)
	if err != nil {
		return nil, nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}
	s.SelectAttributes(attributesFromOptions(cfg.Options))

	switch {
	case cfg.Options.FaceFile != "":
		data, err := os.ReadFile(cfg.Options.FaceFile)
		if err != nil {
			return nil, nil, fmt.Errorf("顔写真の読み込みに失敗しました: %w", err)
		}
		if _, err := s.UploadFace(data, mime.TypeByExtension(filepath.Ext(cfg.Options.FaceFile))); err != nil {
			return nil, nil, fmt.Errorf("顔写真を使用できません: %s", domain.UserMessage(err))
		}
	case cfg.Options.FaceURL != "":
		if _, err := s.UploadFaceURL(ctx, cfg.Options.FaceURL); err != nil {
			return nil, nil, fmt.Errorf("顔写真を使用できません: %w", err)
		}
	}

	slog.Info("セッションを開始しました", "session", s.ID(), "text_model", cfg.Generation.TextModel, "image_model", cfg.Generation.ImageModel)
	return app, s, nil
}

func attributesFromOptions(o config.RunOptions) domain.AttributeSelection {
	return domain.AttributeSelection{
		domain.AttrGender:      o.Gender,
		domain.AttrHairStyle:   o.HairStyle,
		domain.AttrHairColor:   o.HairColor,
		domain.AttrPersonality: o.Personality,
		domain.AttrOutfit:      o.Outfit,
		domain.AttrWeapon:      o.Weapon,
	}
}

// generateCharacter はキャラクターを生成し、表示用画像を保存します。
func generateCharacter(ctx context.Context, s *session.Session) (*domain.CharacterResult, error) {
	result, err := s.StartCharacterGeneration(ctx)
	if err != nil {
		return nil, fmt.Errorf("キャラクター生成に失敗しました: %s", domain.UserMessage(err))
	}

	path, err := writeImage(cfg.Options.OutputDir, "character_"+s.ID(), result.Display.Image)
	if err != nil {
		return nil, err
	}
	slog.Info("キャラクターを保存しました", "path", path, "latency_ms", result.Display.LatencyMs(), "prompt", result.Display.Prompt)
	fmt.Printf("🎨 キャラクター完成: %s (%.1fs, $%.3f)\n", path, result.Display.Latency.Seconds(), result.Display.CostUSD)
	return result, nil
}

// writeImage は MIME タイプから拡張子を決めて画像を保存します。
func writeImage(dir, name string, img domain.EncodedImage) (string, error) {
	extension := ".png"
	if exts, err := mime.ExtensionsByType(img.MimeType); err == nil && len(exts) > 0 {
		extension = exts[0]
	} else {
		slog.Warn("MIMEタイプから拡張子を決定できないため .png を使います", "mime_type", img.MimeType)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	path := filepath.Join(dir, name+extension)
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("画像の保存に失敗しました: %w", err)
	}
	slog.Debug("画像を保存しました", "path", path, "bytes", len(img.Data))
	return path, nil
}
