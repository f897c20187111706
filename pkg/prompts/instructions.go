package prompts

// DescribeFaceInstruction は顔写真から特徴を抽出する際の指示文です。
const DescribeFaceInstruction = "Describe this person's facial features in precise detail: face shape, eyes, nose, jawline, cheekbones, lips, distinctive features. " +
	"Write it as a briefing for a manga artist who needs to draw them accurately. Be concise but specific."

// ストーリーが指定されない場合の単発パネル用シナリオ
const (
	DefaultPanelSceneID    = "classroom"
	DefaultPanelSceneTitle = "Classroom"
	DefaultPanelPrompt     = "Manga panel, Demon Slayer style. Place this character in a Japanese classroom, sitting at a desk. " +
		"High-contrast ink, screen tones. " +
		`Include a clear white thought bubble with the EXACT English text: "I need to go to the bathroom". ` +
		"Ensure the text is legible and centered in the bubble. No Japanese characters."
)
