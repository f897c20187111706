package prompts

import (
	"strings"

	"github.com/shouni/manga-adventure-kit/pkg/domain"
)

// 属性が未選択の場合に使うデフォルト値
var defaultAttributes = map[string]string{
	domain.AttrGender:      "neutral",
	domain.AttrHairStyle:   "short",
	domain.AttrHairColor:   "black",
	domain.AttrPersonality: "calm",
	domain.AttrOutfit:      "school uniform",
	domain.AttrWeapon:      domain.WeaponNone,
}

const (
	genericOpener  = "Full body manga-style illustration. "
	likenessOpener = "Full body manga-style illustration drawn to resemble a specific person (facial features listed below). "
	inkStyle       = "High detail, black and white ink with screen tone shading. "
	figureClause   = ". Full body visible from head to toe, standing pose. Pure white background, no environment, no scenery, character only. " +
		"Anime/manga art style, clean linework, dramatic lighting, isolated figure."
	faceSuffixLead = " Facial features to replicate: "
)

// DefaultAttribute はカテゴリのデフォルト値を返します。
func DefaultAttribute(key string) string {
	return defaultAttributes[key]
}

// ResolveAttributes は既知のカテゴリだけを取り出し、未選択のものをデフォルトで埋めます。
func ResolveAttributes(attrs domain.AttributeSelection) map[string]string {
	out := make(map[string]string, len(defaultAttributes))
	for key, def := range defaultAttributes {
		if v, ok := attrs.Get(key); ok {
			out[key] = v
		} else {
			out[key] = def
		}
	}
	return out
}

// BuildCharacterPrompt は属性と（任意の）顔の説明からキャラクター生成用の指示文を組み立てます。
// 純粋関数なので同じ入力には常に同じ文字列を返します。
func BuildCharacterPrompt(attrs domain.AttributeSelection, faceDescription string) string {
	r := ResolveAttributes(attrs)
	face := strings.TrimSpace(faceDescription)

	var sb strings.Builder
	if face != "" {
		sb.WriteString(likenessOpener)
	} else {
		sb.WriteString(genericOpener)
	}
	sb.WriteString(inkStyle)
	sb.WriteString(r[domain.AttrGender] + " character, ")
	sb.WriteString(r[domain.AttrHairStyle] + " " + r[domain.AttrHairColor] + " hair, ")
	sb.WriteString(r[domain.AttrPersonality] + " expression, wearing " + r[domain.AttrOutfit])
	if weapon := r[domain.AttrWeapon]; !strings.EqualFold(weapon, domain.WeaponNone) {
		sb.WriteString(", holding " + weapon)
	}
	sb.WriteString(figureClause)

	if face != "" {
		sb.WriteString(faceSuffixLead)
		sb.WriteString(faceDescription)
	}
	return sb.String()
}
