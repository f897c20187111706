package generator

const (
	// DefaultCostPerImage は画像 1 枚あたりの名目コスト（USD）です。情報表示のみに使います。
	DefaultCostPerImage = 0.039

	ImageCompressionQuality = 75
	cacheKeyReference       = "reference:"
	cacheKeyFaceDescription = "face_desc:"

	responseModalityImage = "IMAGE"
	roleUser              = "user"
)

// imageOutput は応答解析の内部結果
type imageOutput struct {
	Data     []byte
	MimeType string
}
