package run

import (
	"time"

	"github.com/maplesyrupsucker/bulk-dalle/internal/config"
	"github.com/maplesyrupsucker/bulk-dalle/internal/domain"
)

// Observer 用于把"运行进度/阶段/条目结果"从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 执行循环是串行的，但 OnProgress 可能来自 CLI 自己的 keepalive ticker，
//   实现仍需并发安全。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnWarn 输出非致命告警（例如账本损坏被重置为空）。
	OnWarn(msg string)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个 URL 处理完成时调用（用于每条结果的一行输出）。
	OnItemDone(idx, total int, url string, res domain.ItemResult, dur time.Duration)
	// OnProgress 用于 keepalive（通常由 CLI 自己 ticker 触发；run 层不强制调用）。
	OnProgress(done, total, ok, fail, skip int, elapsed time.Duration)
}
