package run

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/imgdup/internal/app/verify"
	"github.com/John-Robertt/imgdup/internal/config"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	hashed     int
	verifyEvs  []verify.ProgressEvent
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnHashProgress(done, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hashed = done
}

func (o *recordObserver) OnVerifyProgress(ev verify.ProgressEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verifyEvs = append(o.verifyEvs, ev)
}

func TestExecuteWithObserver_EmitsPhaseEvents(t *testing.T) {
	root := t.TempDir()
	writeSolidPNG(t, root, "a.png", 4, 4, red)
	copyFile(t, root, "a.png", "sub/b.png")
	writeSolidPNG(t, root, "c.png", 2, 2, red)

	obs := &recordObserver{}
	_, err := ExecuteWithObserver(context.Background(), effFor(root, true), nil, obs)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	wantPhases := []string{"scan", "hash", "verify", "report"}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	if obs.hashed != 3 {
		t.Fatalf("期望哈希进度到 3，实际 %d", obs.hashed)
	}
	// 1 组 2 个成员：组开始 1 次 + 比较 1 次。
	if len(obs.verifyEvs) != 2 {
		t.Fatalf("校验事件数量不符合预期：%+v", obs.verifyEvs)
	}
}

func TestExecuteWithObserver_NoVerifyPhaseWhenDisabled(t *testing.T) {
	root := t.TempDir()
	writeSolidPNG(t, root, "a.png", 4, 4, red)

	obs := &recordObserver{}
	_, err := ExecuteWithObserver(context.Background(), effFor(root, false), nil, obs)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	wantPhases := []string{"scan", "hash", "report"}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
}

func TestExecuteWithObserver_NilObserver_SameResultAsExecute(t *testing.T) {
	root := t.TempDir()
	writeSolidPNG(t, root, "a.png", 4, 4, red)
	copyFile(t, root, "a.png", "b.png")

	a, err := Execute(context.Background(), effFor(root, true), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := ExecuteWithObserver(context.Background(), effFor(root, true), nil, &recordObserver{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	// 时间与 run_id 每次都不同；对比时归零。
	a.StartedAt, a.FinishedAt, a.RunID = time.Time{}, time.Time{}, ""
	b.StartedAt, b.FinishedAt, b.RunID = time.Time{}, time.Time{}, ""

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("observer 不应改变结果：\nExecute=%+v\nWithObs=%+v", a, b)
	}
}
