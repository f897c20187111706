package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// ProgressReporter はフェーズ変化と経過時間の通知を受け取ります。
// 表示用の演出にのみ使われ、コアの処理は通知の有無に依存しません。
type ProgressReporter interface {
	OnPhaseChanged(phase State, elapsed time.Duration)
	OnTick(phase State, elapsed time.Duration)
}

// NopReporter は何もしない ProgressReporter です。
type NopReporter struct{}

func (NopReporter) OnPhaseChanged(State, time.Duration) {}
func (NopReporter) OnTick(State, time.Duration)         {}

// LogReporter はフェーズ変化を slog に出力します。Tick は Debug レベルです。
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r LogReporter) OnPhaseChanged(phase State, elapsed time.Duration) {
	r.logger().Info("phase changed", "phase", phase.String(), "elapsed_ms", elapsed.Milliseconds())
}

func (r LogReporter) OnTick(phase State, elapsed time.Duration) {
	r.logger().Debug("in progress", "phase", phase.String(), "elapsed_ms", elapsed.Milliseconds())
}

// startTicker は interval ごとに OnTick を呼び出し、返された関数で停止します。
func startTicker(ctx context.Context, reporter ProgressReporter, phase State, start time.Time, interval time.Duration) (stop func()) {
	if reporter == nil || interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				reporter.OnTick(phase, time.Since(start))
			}
		}
	}()
	return func() { close(done) }
}
