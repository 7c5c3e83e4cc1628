// Package tasks 是前端持有的分析任务表：每次分析在独立 goroutine 上执行，调用方按 ID 轮询、等待或取消。
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/imgdup/internal/domain"
)

// State 是任务状态。
type State string

const (
	StateRunning  State = "running"
	StateDone     State = "done"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

// ErrUnknownTask 表示任务 ID 不存在（或已被 Forget）。
var ErrUnknownTask = errors.New("任务不存在")

// Func 是任务体；必须在 ctx 取消后尽快返回。
type Func func(ctx context.Context) (domain.Report, error)

// Snapshot 是任务在某一时刻的只读视图。
type Snapshot struct {
	ID         string
	State      State
	Report     *domain.Report
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}

	// 以下字段受 Registry.mu 保护。
	snap Snapshot
}

// Registry 记录进行中与已结束的任务。零值不可用，使用 NewRegistry。
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*task
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{tasks: map[string]*task{}, now: time.Now}
}

// Start 在新 goroutine 上执行 fn 并立即返回任务 ID。
func (r *Registry) Start(parent context.Context, fn Func) string {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	t := &task{
		cancel: cancel,
		done:   make(chan struct{}),
		snap:   Snapshot{ID: id, State: StateRunning, StartedAt: r.now()},
	}

	r.mu.Lock()
	r.tasks[id] = t
	r.mu.Unlock()

	go func() {
		defer close(t.done)
		defer cancel()

		rep, err := fn(ctx)

		r.mu.Lock()
		defer r.mu.Unlock()
		t.snap.FinishedAt = r.now()
		switch {
		case err == nil:
			t.snap.State = StateDone
			t.snap.Report = &rep
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			// 取消时丢弃部分结果。
			t.snap.State = StateCanceled
			t.snap.Err = err
		default:
			t.snap.State = StateFailed
			t.snap.Err = err
		}
	}()

	return id
}

// Get 返回任务当前快照；不阻塞。
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snap, true
}

// Wait 阻塞到任务结束或 ctx 取消。
func (r *Registry) Wait(ctx context.Context, id string) (Snapshot, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrUnknownTask
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return t.snap, nil
}

// Cancel 请求取消任务；任务不存在或已结束时返回 false。
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.tasks[id]
	running := ok && t.snap.State == StateRunning
	r.mu.Unlock()
	if !running {
		return false
	}
	t.cancel()
	return true
}

// CancelAll 取消全部进行中的任务（例如收到 SIGINT）。
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	var running []*task
	for _, t := range r.tasks {
		if t.snap.State == StateRunning {
			running = append(running, t)
		}
	}
	r.mu.Unlock()

	for _, t := range running {
		t.cancel()
	}
	return len(running)
}

// Forget 移除已结束的任务；进行中的任务不会被移除。
func (r *Registry) Forget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.snap.State == StateRunning {
		return false
	}
	delete(r.tasks, id)
	return true
}
