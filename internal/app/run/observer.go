package run

import (
	"time"

	"github.com/John-Robertt/imgdup/internal/app/verify"
	"github.com/John-Robertt/imgdup/internal/config"
)

// Observer 把运行进度/阶段从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 实现必须并发安全：哈希进度来自汇总 goroutine，校验进度来自执行 goroutine。
type Observer interface {
	// OnStart 在分析开始时调用（尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnHashProgress 在每个文件哈希完成后调用。
	OnHashProgress(done, total int)
	// OnVerifyProgress 转发像素校验的进度事件。
	OnVerifyProgress(ev verify.ProgressEvent)
}
