package domain

import (
	"encoding/base64"
	"time"
)

// EncodedImage は正規化済み（または生成直後）の画像バイナリとそのメタデータです。
// SourceWidth/SourceHeight は正規化前の寸法、Width/Height はエンコード後の寸法を保持します。
type EncodedImage struct {
	Data         []byte
	MimeType     string
	SourceWidth  int
	SourceHeight int
	Width        int
	Height       int
}

// DataURL は画面表示用の data URL 形式に変換します。
func (e EncodedImage) DataURL() string {
	return "data:" + e.MimeType + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}

// IsEmpty は画像データが空かどうかを返します。
func (e EncodedImage) IsEmpty() bool {
	return len(e.Data) == 0
}

// ImageResponse は生成サービスから返された加工前の画像データです。
type ImageResponse struct {
	Data     []byte
	MimeType string
}

// GenerationArtifact は 1 ステージの成功結果（画像・プロンプト・所要時間・コスト）です。
type GenerationArtifact struct {
	Image   EncodedImage
	Prompt  string
	Latency time.Duration
	CostUSD float64
}

// LatencyMs は表示用にミリ秒単位の所要時間を返します。
func (a GenerationArtifact) LatencyMs() int64 {
	return a.Latency.Milliseconds()
}

// CharacterResult はキャラクター生成の結果です。
// Display は生成されたままの画像、Reference はパネル生成の参照画像として再利用する正規化済みコピーです。
type CharacterResult struct {
	Display   GenerationArtifact
	Reference EncodedImage
}
