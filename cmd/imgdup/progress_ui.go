package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/imgdup/internal/app/run"
	"github.com/John-Robertt/imgdup/internal/app/verify"
	"github.com/John-Robertt/imgdup/internal/config"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// - 所有过程信息写到 stderr，不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 高频事件（每个文件/每次比较）按 printEvery 节流；阶段结束总会打印
// - keepalive：长时间没有输出时定期打印当前进度
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	phase      string
	hashDone   int
	hashTotal  int
	lastVerify verify.ProgressEvent

	printEvery         time.Duration
	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		printEvery:         500 * time.Millisecond,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.phase = "scan"

	fmt.Fprintf(p.w, "[%s] imgdup 分析\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  pixel_verify: %s\n", onOff(eff.PixelVerify))
	fmt.Fprintf(p.w, "  workers: %d\n", eff.Workers)
	fmt.Fprintf(p.w, "  sample: threshold=%s target=%s\n",
		humanize.Comma(int64(eff.Sample.Threshold)), humanize.Comma(int64(eff.Sample.Target)))
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除暂存区\n", formatStringListJSON(eff.ExcludeDirs))
	if len(eff.ExcludePatterns) > 0 {
		fmt.Fprintf(p.w, "  exclude_patterns: %s\n", formatStringListJSON(eff.ExcludePatterns))
	}
	fmt.Fprintf(p.w, "  holding: %s\n", eff.HoldingDir)
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		p.phase = "hash"
		fmt.Fprintf(p.w, "扫描: images=%d (%s)\n", intField(fields, "images"), formatShortDuration(dur))
	case "hash":
		p.phase = "verify"
		fmt.Fprintf(p.w, "哈希: hashes=%d candidates=%d io_errors=%d (%s)\n",
			intField(fields, "hashes"), intField(fields, "candidates"), intField(fields, "io_errors"), formatShortDuration(dur))
	case "verify":
		p.phase = "report"
		fmt.Fprintf(p.w, "校验: groups=%d comparisons=%d sampled=%d decode_fail=%d (%s)\n",
			intField(fields, "groups"), intField(fields, "comparisons"), intField(fields, "sampled"),
			intField(fields, "decode_fail"), formatShortDuration(dur))
	case "report":
		p.phase = "done"
		fmt.Fprintf(p.w, "报告: groups=%d removable=%d reclaimable=%s (%s)\n\n",
			intField(fields, "groups"), intField(fields, "removable"),
			humanize.IBytes(uint64(intField(fields, "reclaimable"))), formatShortDuration(dur))
		p.stopTickerLocked()
	default:
		// 未知阶段也不要静默。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnHashProgress(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.hashDone, p.hashTotal = done, total
	if done < total && time.Since(p.lastPrinted) < p.printEvery {
		return
	}
	p.printHashLocked()
}

func (p *progressUI) OnVerifyProgress(ev verify.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastVerify = ev
	if ev.Comparison < ev.TotalComparisons && time.Since(p.lastPrinted) < p.printEvery {
		return
	}
	p.printVerifyLocked()
}

func (p *progressUI) printHashLocked() {
	fmt.Fprintf(p.w, "  哈希 %d/%d%s\n", p.hashDone, p.hashTotal, percent(p.hashDone, p.hashTotal))
	p.lastPrinted = time.Now()
}

func (p *progressUI) printVerifyLocked() {
	ev := p.lastVerify
	fmt.Fprintf(p.w, "  校验 组 %d/%d 比较 %d/%d%s %s\n",
		ev.Group, ev.TotalGroups, ev.Comparison, ev.TotalComparisons,
		percent(ev.Comparison, ev.TotalComparisons), truncate(filepath.Base(ev.File), 60))
	p.lastPrinted = time.Now()
}

// Stop 停止 keepalive（可重复调用）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	stop := make(chan struct{})
	p.stopCh = stop
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					p.keepaliveLocked()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) keepaliveLocked() {
	elapsed := formatElapsed(time.Since(p.startedAt))
	switch p.phase {
	case "hash":
		fmt.Fprintf(p.w, "进度: 哈希 %d/%d elapsed=%s\n", p.hashDone, p.hashTotal, elapsed)
	case "verify":
		fmt.Fprintf(p.w, "进度: 校验 %d/%d elapsed=%s\n", p.lastVerify.Comparison, p.lastVerify.TotalComparisons, elapsed)
	default:
		fmt.Fprintf(p.w, "进度: %s elapsed=%s\n", p.phase, elapsed)
	}
	p.lastPrinted = time.Now()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func percent(done, total int) string {
	if total <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%d%%)", done*100/total)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
