package domain

import "strings"

// 属性カテゴリのキー
const (
	AttrGender      = "gender"
	AttrHairStyle   = "hairStyle"
	AttrHairColor   = "hairColor"
	AttrPersonality = "personality"
	AttrOutfit      = "outfit"
	AttrWeapon      = "weapon"
)

// WeaponNone は武器なしを表す番兵値です。
const WeaponNone = "none"

// AttributeSelection はカテゴリごとに 1 つだけ選択された属性値です。
// 未知のキーはプロンプト構築時に無視されます。
type AttributeSelection map[string]string

// Clone はパイプラインに渡す時点の選択内容を固定するためのコピーを返します。
func (a AttributeSelection) Clone() AttributeSelection {
	out := make(AttributeSelection, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Get は前後の空白を除いた値を返します。空文字は未選択として扱います。
func (a AttributeSelection) Get(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}
