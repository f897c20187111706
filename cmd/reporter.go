package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shouni/manga-adventure-kit/pkg/pipeline"
)

var (
	sfxWords    = []string{"BZZZT!!", "WHOOSH!", "KRAK!!", "ZAP!!", "DOOM!!", "FWOOOM!", "SLASH!", "BANG!!"}
	drawPhrases = []string{"Summoning ink...", "Drawing destiny...", "Channeling chi...", "Inking shadows...", "Applying screen tone...", "Sharpening lines...", "Awakening character..."}
	scanPhrases = []string{"Scanning face...", "Reading features...", "Mapping likeness...", "Analyzing soul..."}
)

// terminalReporter は経過時間と効果音をターミナルの 1 行に描画します。表示専用です。
type terminalReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminalReporter(out io.Writer) *terminalReporter {
	return &terminalReporter{out: out}
}

func (r *terminalReporter) OnPhaseChanged(phase pipeline.State, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch phase {
	case pipeline.StateCharacterReady, pipeline.StatePanelReady, pipeline.StateErrored:
		fmt.Fprintf(r.out, "\r\033[K[%s] %s\n", formatElapsed(elapsed), phase)
	default:
		r.draw(phase, elapsed)
	}
}

func (r *terminalReporter) OnTick(phase pipeline.State, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draw(phase, elapsed)
}

// draw は 2 秒ごとに効果音、4 秒ごとにフレーズを切り替えます。mu を保持して呼び出すこと。
func (r *terminalReporter) draw(phase pipeline.State, elapsed time.Duration) {
	sec := int(elapsed.Seconds())
	phrases := drawPhrases
	if phase == pipeline.StateDescribing {
		phrases = scanPhrases
	}
	sfx := sfxWords[(sec/2)%len(sfxWords)]
	phrase := phrases[(sec/4)%len(phrases)]
	fmt.Fprintf(r.out, "\r\033[K%-8s %s %s", sfx, formatElapsed(elapsed), phrase)
}

func formatElapsed(d time.Duration) string {
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}
