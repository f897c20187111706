package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDecode は入力が画像としてデコードできないことを示します。
	ErrDecode = errors.New("image decode failed")
	// ErrUpstream は生成サービスへの通信失敗・異常応答・タイムアウトを示します。
	ErrUpstream = errors.New("generation service unavailable")
	// ErrNoImageReturned はサービスが応答したものの画像パーツを返さなかった（拒否された）ことを示します。
	ErrNoImageReturned = errors.New("no image returned")
	// ErrEmptyResult は顔の説明ステージがテキストを返さなかったことを示します。
	ErrEmptyResult = errors.New("empty description")
	// ErrUnknownScene はストーリーグラフに存在しないシーンIDを参照したことを示します。
	ErrUnknownScene = errors.New("unknown scene")
	// ErrInvalidChoice は現在のシーンに存在しない選択肢が指定されたことを示します。
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrInvalidGraph はストーリーグラフの読み込み時検証に失敗したことを示します。
	ErrInvalidGraph = errors.New("invalid story graph")
	// ErrSuperseded は後から開始された呼び出しによって結果が無効化されたことを示します。
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrCharacterNotReady はキャラクター画像がまだ生成されていないことを示します。
	ErrCharacterNotReady = errors.New("character not generated yet")
)

// Stage 名
const (
	StageDescribe          = "describe"
	StageGenerateCharacter = "generate-character"
	StageGeneratePanel     = "generate-panel"
)

// StageError はステージ名と失敗までに費やした時間を保持するエラーです。
type StageError struct {
	Stage   string
	Elapsed time.Duration
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed after %dms: %v", e.Stage, e.Elapsed.Milliseconds(), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// SceneError はシーン訪問の失敗にシーンIDを付与します。
type SceneError struct {
	SceneID string
	Err     error
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("scene %q: %v", e.SceneID, e.Err)
}

func (e *SceneError) Unwrap() error { return e.Err }

// UserMessage はエラーを利用者向けの短いメッセージに変換します。
// 所要時間が分かる場合は末尾に付与します。
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var msg string
	switch {
	case errors.Is(err, ErrNoImageReturned):
		msg = "The model refused or produced no image. Try different attributes."
	case errors.Is(err, ErrUpstream):
		msg = "The generation service is unavailable. Please try again."
	case errors.Is(err, ErrEmptyResult):
		msg = "Could not read any facial features from the photo."
	case errors.Is(err, ErrDecode):
		msg = "The uploaded file is not a readable image."
	case errors.Is(err, ErrSuperseded):
		msg = "This request was replaced by a newer one."
	case errors.Is(err, ErrCharacterNotReady):
		msg = "Generate a character first."
	case errors.Is(err, ErrUnknownScene), errors.Is(err, ErrInvalidChoice), errors.Is(err, ErrInvalidGraph):
		msg = "The story is broken: " + err.Error()
	default:
		msg = err.Error()
	}

	var se *StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("%s (%.1fs)", msg, se.Elapsed.Seconds())
	}
	return msg
}
