package imgutil

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"net/http"
	"strings"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	"golang.org/x/image/draw"
)

const (
	// DefaultMaxDimension は長辺の上限（px）のデフォルトです。
	DefaultMaxDimension = 1024
	// DefaultQuality は JPEG 品質のデフォルト（0〜1）です。
	DefaultQuality = 0.8
)

// Normalize は任意の画像を長辺 maxDimension 以下・指定品質の JPEG に再エンコードします。
// declaredMIME が空でなければ、デコード前にそれが image/* であることを確認します。
// アスペクト比は保持され、上限以下の画像は寸法を変えずに再エンコードのみ行います。
func Normalize(data []byte, declaredMIME string, maxDimension int, quality float64) (*domain.EncodedImage, error) {
	if maxDimension <= 0 {
		return nil, fmt.Errorf("maxDimension must be positive: %d", maxDimension)
	}
	if quality <= 0 || quality > 1 || math.IsNaN(quality) {
		return nil, fmt.Errorf("quality must be in (0,1]: %v", quality)
	}
	if err := checkImageType(data, declaredMIME); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", domain.ErrDecode, srcW, srcH)
	}
	w, h := FitWithin(srcW, srcH, maxDimension)

	// JPEG はアルファを持たないため、白背景に描画してから縮小する
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == srcW && h == srcH {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗しました: %w", err)
	}

	return &domain.EncodedImage{
		Data:         buf.Bytes(),
		MimeType:     OutputMimeType,
		SourceWidth:  srcW,
		SourceHeight: srcH,
		Width:        w,
		Height:       h,
	}, nil
}

// FitWithin は長辺が maxDimension を超える場合のみ、単一の倍率で縮小した寸法を返します。
func FitWithin(width, height, maxDimension int) (int, int) {
	longest := max(width, height)
	if longest <= maxDimension {
		return width, height
	}
	scale := float64(maxDimension) / float64(longest)
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// checkImageType はデコード前に画像でない入力を安価に弾きます。
func checkImageType(data []byte, declaredMIME string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", domain.ErrDecode)
	}
	if declaredMIME != "" && !strings.HasPrefix(strings.ToLower(strings.TrimSpace(declaredMIME)), "image/") {
		return fmt.Errorf("%w: declared content type %q is not an image", domain.ErrDecode, declaredMIME)
	}
	if sniffed := http.DetectContentType(data); !strings.HasPrefix(sniffed, "image/") {
		return fmt.Errorf("%w: detected content type %q is not an image", domain.ErrDecode, sniffed)
	}
	return nil
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	return min(max(v, 1), 100)
}

// Probe は画像全体をデコードせずに寸法だけを取得します。
func Probe(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return cfg.Width, cfg.Height, nil
}
