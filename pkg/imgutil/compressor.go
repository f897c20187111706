package imgutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
	_ "golang.org/x/image/webp"
)

// OutputMimeType は正規化後の出力形式です。入力形式に関わらず常に JPEG に揃えます。
const OutputMimeType = "image/jpeg"

// CompressToJPEG は画像データ（PNG, GIF, JPEG, WebP）をリサイズせずに JPEG 形式に圧縮します。
// quality は image/jpeg と同じ 1〜100 の整数です。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
