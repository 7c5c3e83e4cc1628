package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/John-Robertt/imgdup/internal/app/run"
	"github.com/John-Robertt/imgdup/internal/app/tasks"
	"github.com/John-Robertt/imgdup/internal/config"
	"github.com/John-Robertt/imgdup/internal/domain"
	"github.com/John-Robertt/imgdup/internal/infra/fsx"
	"github.com/John-Robertt/imgdup/internal/infra/lockx"
	"github.com/John-Robertt/imgdup/internal/logging"
	"github.com/John-Robertt/imgdup/internal/relocate"
	"github.com/John-Robertt/imgdup/internal/scan"
)

// cliEnv 是命令共享的外部依赖；测试替换 stdout/stderr/cwd 即可在进程内驱动 CLI。
type cliEnv struct {
	// ctx 在收到中断信号时取消；分析任务、移动与清空都在它之下运行。
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	getwd  func() (string, error)
	tasks  *tasks.Registry

	// isTerminal 决定输出形态：stdout 非终端时只输出一个 JSON 文档。
	isTerminal func(w io.Writer) bool
}

func newEnv(ctx context.Context) *cliEnv {
	return &cliEnv{
		ctx:        ctx,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		getwd:      os.Getwd,
		tasks:      tasks.NewRegistry(),
		isTerminal: isTerminal,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// jsonMode：显式 --json，或 stdout 不是终端。
func (e *cliEnv) jsonMode(forced bool) bool {
	return forced || !e.isTerminal(e.stdout)
}

func (e *cliEnv) loadConfig(cli config.CLIArgs) (config.EffectiveConfig, *zap.Logger, error) {
	cwd, err := e.getwd()
	if err != nil {
		return config.EffectiveConfig{}, nil, fmt.Errorf("读取当前目录失败：%w", err)
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return config.EffectiveConfig{}, nil, err
	}
	logger, err := logging.New(logging.Options{Level: eff.LogLevel, Format: eff.LogFormat})
	if err != nil {
		return config.EffectiveConfig{}, nil, &config.Error{Code: config.ErrCodeInvalid, Err: err}
	}
	return eff, logger, nil
}

// analyze 把一次分析交给任务表执行并等待结果；中断信号经由任务表取消它。
func (e *cliEnv) analyze(eff config.EffectiveConfig, logger *zap.Logger) (domain.Report, error) {
	var obs run.Observer
	if e.isTerminal(e.stderr) {
		ui := newProgressUI(e.stderr)
		defer ui.Stop()
		obs = ui
	}

	id := e.tasks.Start(e.ctx, func(ctx context.Context) (domain.Report, error) {
		return run.ExecuteWithObserver(ctx, eff, logger, obs)
	})
	defer e.tasks.Forget(id)

	snap, err := e.tasks.Wait(context.Background(), id)
	if err != nil {
		return domain.Report{}, err
	}
	switch snap.State {
	case tasks.StateDone:
		return *snap.Report, nil
	default:
		return domain.Report{}, snap.Err
	}
}

// errorDoc 是失败时的 JSON 输出（stdout 非 TTY 时仍保证“只有一个 JSON 文档”）。
type errorDoc struct {
	ErrorCode string `json:"error_code"`
	Error     string `json:"error"`
}

func errorCode(err error) string {
	if c := config.Code(err); c != "" {
		return c
	}
	var (
		nf *scan.NotFoundError
		nd *scan.NotADirectoryError
	)
	switch {
	case errors.As(err, &nf):
		return "root_not_found"
	case errors.As(err, &nd):
		return "root_not_directory"
	case errors.Is(err, lockx.ErrLocked):
		return "locked"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case relocate.IsUnsafeRemoval(err):
		return "unsafe_removal"
	case relocate.IsPartial(err):
		return "partial_relocation"
	case errors.Is(err, relocate.ErrNotConfirmed):
		return "not_confirmed"
	case fsx.IsPathTypeConflict(err):
		return "holding_conflict"
	default:
		return "failed"
	}
}

// fail 输出致命错误并返回退出码错误（cobra 不再重复打印）。
func (e *cliEnv) fail(jsonOut bool, err error) error {
	if jsonOut {
		_ = writeJSON(e.stdout, errorDoc{ErrorCode: errorCode(err), Error: err.Error()})
	}
	fmt.Fprintf(e.stderr, "%s：%v\n", errorCode(err), err)
	return exitCodeError{code: 1}
}
