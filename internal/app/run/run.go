// Package run 串起一次完整分析：扫描 -> 哈希分组 -> 像素校验（可选）-> 构建报告。
package run

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/imgdup/internal/app"
	"github.com/John-Robertt/imgdup/internal/app/report"
	"github.com/John-Robertt/imgdup/internal/app/verify"
	"github.com/John-Robertt/imgdup/internal/config"
	"github.com/John-Robertt/imgdup/internal/domain"
	"github.com/John-Robertt/imgdup/internal/infra/lockx"
	"github.com/John-Robertt/imgdup/internal/logging"
	"github.com/John-Robertt/imgdup/internal/scan"
)

// Execute 执行一次分析并返回报告。
func Execute(ctx context.Context, eff config.EffectiveConfig, logger *zap.Logger) (domain.Report, error) {
	return ExecuteWithObserver(ctx, eff, logger, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息。
//
// 错误只有三类：根目录错误（scan.NotFoundError/NotADirectoryError）、
// 锁被占用（lockx.ErrLocked）、ctx 取消。单个文件的问题都进入 Report.Issues。
// 每次调用都从零开始，不复用上一次的任何中间状态。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, logger *zap.Logger, obs Observer) (domain.Report, error) {
	log := logging.OrNop(logger)
	started := time.Now().UTC()
	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))

	if obs != nil {
		obs.OnStart(eff)
	}

	root, err := scan.CheckRoot(eff.Path)
	if err != nil {
		return domain.Report{}, err
	}

	lk, err := lockx.Acquire(root)
	if err != nil {
		return domain.Report{}, err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			log.Warn("释放锁失败", zap.Error(err))
		}
	}()

	scanStarted := time.Now()
	files, err := scan.ScanImages(ctx, root, scan.Options{
		HoldingDir:      eff.HoldingDir,
		ExcludeDirs:     eff.ExcludeDirs,
		ExcludePatterns: eff.ExcludePatterns,
		Logger:          log,
	})
	if err != nil {
		return domain.Report{}, err
	}
	phaseDone(log, obs, "scan", map[string]any{"images": len(files)}, time.Since(scanStarted))

	hashStarted := time.Now()
	hashOpts := app.GroupOptions{Workers: eff.Workers, Logger: log}
	if obs != nil {
		hashOpts.OnHashed = obs.OnHashProgress
	}
	groups, issues, err := app.GroupByHash(ctx, files, hashOpts)
	if err != nil {
		return domain.Report{}, err
	}
	candidates := groups.Candidates()
	phaseDone(log, obs, "hash", map[string]any{
		"hashes":     len(groups),
		"candidates": len(candidates),
		"io_errors":  len(issues),
	}, time.Since(hashStarted))

	if eff.PixelVerify {
		verifyStarted := time.Now()
		v := &verify.Verifier{Options: eff.Sample, Logger: log}
		if obs != nil {
			v.Progress = obs.OnVerifyProgress
		}
		confirmed, stats, vIssues, err := v.Verify(ctx, candidates)
		if err != nil {
			return domain.Report{}, err
		}
		issues = append(issues, vIssues...)
		candidates = confirmed
		phaseDone(log, obs, "verify", map[string]any{
			"groups":      len(confirmed),
			"comparisons": stats.Comparisons,
			"sampled":     stats.Sampled,
			"decode_fail": stats.DecodeFailures,
		}, time.Since(verifyStarted))
	}

	if err := ctx.Err(); err != nil {
		return domain.Report{}, err
	}

	buildStarted := time.Now()
	rep := report.Build(report.Input{
		Root:        root,
		RunID:       runID,
		TotalImages: len(files),
		Groups:      candidates,
		Verified:    eff.PixelVerify,
		Issues:      issues,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
	})
	phaseDone(log, obs, "report", map[string]any{
		"groups":      rep.Summary.DuplicateGroups,
		"removable":   rep.Summary.RemovableCount,
		"reclaimable": rep.Summary.ReclaimableBytes,
	}, time.Since(buildStarted))

	return rep, nil
}

func phaseDone(log *zap.Logger, obs Observer, name string, fields map[string]any, dur time.Duration) {
	log.Debug("阶段完成", zap.String("phase", name), zap.Any("fields", fields), zap.Duration("dur", dur))
	if obs != nil {
		obs.OnPhaseDone(name, fields, dur)
	}
}
