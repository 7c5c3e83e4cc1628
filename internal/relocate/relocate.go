// Package relocate 把用户选中的重复文件移入暂存区，并负责暂存区的查看与清空。
//
// 暂存区只做 rename 式移动：文件可以手动移回；清空才是不可逆的删除。
package relocate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/John-Robertt/imgdup/internal/app/planner"
	"github.com/John-Robertt/imgdup/internal/domain"
	"github.com/John-Robertt/imgdup/internal/infra/fsx"
	"github.com/John-Robertt/imgdup/internal/infra/lockx"
	"github.com/John-Robertt/imgdup/internal/logging"
	"github.com/John-Robertt/imgdup/internal/scan"
)

// ManifestName 是暂存区内的人类可读清单；清空暂存区时保留。
const ManifestName = "README.txt"

// DefaultHoldingDir 是默认暂存区目录名（位于扫描根目录下，扫描时总是被排除）。
const DefaultHoldingDir = "duplicates_holding"

// 可被测试替换。
var (
	moveFile   = fsx.MoveNoOverwrite
	removeFile = fsx.Remove
)

// KnownGroups 是最近一次分析的重复组：groupID -> 成员绝对路径。
type KnownGroups map[int][]string

// Service 是移动服务。通过显式构造传给需要它的前端组件。
type Service struct {
	Root       string
	HoldingDir string
	Logger     *zap.Logger

	now func() time.Time
}

// New 构造 Service；holdingDir 为相对路径时相对于 root。
func New(root, holdingDir string, logger *zap.Logger) (*Service, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	// 与扫描一致：根目录软链解析为真实路径，已知组的路径才能对上。
	absRoot = scan.ResolveDir(filepath.Clean(absRoot))
	if holdingDir == "" {
		holdingDir = DefaultHoldingDir
	}
	if !filepath.IsAbs(holdingDir) {
		holdingDir = filepath.Join(absRoot, holdingDir)
	}
	return &Service{
		Root:       filepath.Clean(absRoot),
		HoldingDir: filepath.Clean(holdingDir),
		Logger:     logging.OrNop(logger),
		now:        time.Now,
	}, nil
}

// Status 返回暂存区现状。
func (s *Service) Status() (domain.HoldingState, error) {
	return planner.ReadHoldingState(s.HoldingDir, ManifestName)
}

// Relocate 把 paths 移入暂存区。
//
// 顺序：
// 1) 安全预检：任何已知组的全部成员都在本批中 -> UnsafeRemovalError，什么都不动
// 2) 逐个校验并移动；单个文件的问题记入 Failed，不影响其他文件
// 3) 有失败时返回 *PartialRelocationError，同时返回完整结果
//
// ctx 在每次移动前检查；取消时返回已完成部分与 ctx.Err()（已移动的文件已记入清单）。
func (s *Service) Relocate(ctx context.Context, paths []string, known KnownGroups) (domain.RelocationResult, error) {
	res := domain.RelocationResult{
		HoldingDir: s.HoldingDir,
		Moved:      []domain.RelocationRecord{},
		Failed:     []domain.RelocationFailure{},
	}

	srcs := normalizePaths(paths)
	if err := checkSurvivors(srcs, known); err != nil {
		return res, err
	}
	if len(srcs) == 0 {
		return res, nil
	}

	lk, err := lockx.Acquire(s.Root)
	if err != nil {
		return res, err
	}
	defer func() { _ = lk.Release() }()

	fail := func(p, reason string) {
		s.Logger.Warn("文件未移动", zap.String("path", p), zap.String("reason", reason))
		res.Failed = append(res.Failed, domain.RelocationFailure{Path: p, Reason: reason})
	}

	valid := make([]string, 0, len(srcs))
	sizes := make(map[string]int64, len(srcs))
	for _, p := range srcs {
		switch {
		case !isUnder(s.Root, p):
			fail(p, "不在扫描根目录内")
			continue
		case isUnder(s.HoldingDir, p):
			fail(p, "已在暂存区内")
			continue
		}
		fi, err := os.Lstat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				fail(p, "文件不存在")
			} else {
				fail(p, err.Error())
			}
			continue
		}
		if !fi.Mode().IsRegular() {
			fail(p, "不是普通文件")
			continue
		}
		valid = append(valid, p)
		sizes[p] = fi.Size()
	}

	if len(valid) > 0 {
		if err := s.ensureHolding(); err != nil {
			return res, err
		}
		st, err := s.Status()
		if err != nil {
			return res, err
		}

		for _, mv := range planner.PlanMoves(valid, st) {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := moveFile(mv.Src, mv.Dst); err != nil {
				fail(mv.Src, moveFailure(err))
				continue
			}
			rec := domain.RelocationRecord{
				Original: mv.Src,
				Dest:     mv.Dst,
				Size:     sizes[mv.Src],
				MovedAt:  s.now().UTC(),
			}
			res.Moved = append(res.Moved, rec)
			if err := s.appendManifest(rec); err != nil {
				s.Logger.Warn("写入暂存区清单失败", zap.String("path", rec.Dest), zap.Error(err))
			}
			s.Logger.Info("已移入暂存区", zap.String("src", rec.Original), zap.String("dst", rec.Dest))
		}
	}

	if len(res.Failed) > 0 {
		return res, &PartialRelocationError{Failed: res.Failed}
	}
	return res, nil
}

// EmptyHoldingArea 永久删除暂存区内除清单外的全部条目；confirm=false 时返回 ErrNotConfirmed。
// 单个条目删除失败记入 Failed，不中断其他条目。
func (s *Service) EmptyHoldingArea(ctx context.Context, confirm bool) (domain.EmptyResult, error) {
	res := domain.EmptyResult{Failed: []domain.RelocationFailure{}}
	if !confirm {
		return res, ErrNotConfirmed
	}

	lk, err := lockx.Acquire(s.Root)
	if err != nil {
		return res, err
	}
	defer func() { _ = lk.Release() }()

	entries, err := os.ReadDir(s.HoldingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	for _, e := range entries {
		if e.Name() == ManifestName {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p := filepath.Join(s.HoldingDir, e.Name())
		n, size, err := removeEntry(p, e)
		res.DeletedCount += n
		res.FreedBytes += size
		if err != nil {
			s.Logger.Warn("删除暂存文件失败", zap.String("path", p), zap.Error(err))
			res.Failed = append(res.Failed, domain.RelocationFailure{Path: p, Reason: err.Error()})
		}
	}

	if res.DeletedCount > 0 {
		line := fmt.Sprintf("# %s 已清空：删除 %d 个文件，释放 %s\n",
			s.now().Local().Format(time.DateTime), res.DeletedCount, humanize.IBytes(uint64(res.FreedBytes)))
		if err := fsx.AppendFile(filepath.Join(s.HoldingDir, ManifestName), []byte(line)); err != nil {
			s.Logger.Warn("写入暂存区清单失败", zap.Error(err))
		}
	}
	s.Logger.Info("暂存区已清空",
		zap.Int("deleted", res.DeletedCount),
		zap.Int64("freed_bytes", res.FreedBytes),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// removeEntry 删除单个条目；目录按其中的普通文件计数与计量。
func removeEntry(p string, e fs.DirEntry) (int, int64, error) {
	if !e.IsDir() {
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		if err := removeFile(p); err != nil {
			return 0, 0, err
		}
		return 1, size, nil
	}

	var (
		n    int
		size int64
	)
	_ = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			n++
			size += fi.Size()
		}
		return nil
	})
	if err := os.RemoveAll(p); err != nil {
		return 0, 0, err
	}
	return n, size, nil
}

// moveFailure 把移动错误转成面向用户的原因。
func moveFailure(err error) string {
	switch {
	case fsx.IsCrossDevice(err):
		return "暂存区与源文件不在同一文件系统"
	case errors.Is(err, os.ErrExist):
		return "暂存区已有同名文件"
	default:
		return err.Error()
	}
}

func (s *Service) ensureHolding() error {
	if err := fsx.EnsureDir(s.HoldingDir); err != nil {
		return err
	}
	header := fmt.Sprintf(
		"暂存区清单\n"+
			"扫描目录：%s\n"+
			"创建时间：%s\n"+
			"以下文件由重复图片清理移入此目录；如需恢复，按“原路径 -> 暂存路径”手动移回。\n"+
			"清空暂存区会永久删除除本文件外的全部内容。\n\n",
		s.Root, s.now().Local().Format(time.DateTime))
	err := fsx.WriteFileAtomicNoOverwrite(s.HoldingDir, ManifestName, []byte(header))
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}

func (s *Service) appendManifest(rec domain.RelocationRecord) error {
	line := fmt.Sprintf("%s -> %s (%s)\n", rec.Original, rec.Dest, humanize.IBytes(uint64(rec.Size)))
	return fsx.AppendFile(filepath.Join(s.HoldingDir, ManifestName), []byte(line))
}

// checkSurvivors 是全有或全无的预检：按组 ID 升序报告第一个会被清空的组。
func checkSurvivors(srcs []string, known KnownGroups) error {
	if len(known) == 0 || len(srcs) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(srcs))
	for _, p := range srcs {
		set[p] = struct{}{}
	}

	ids := make([]int, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		members := known[id]
		if len(members) == 0 {
			continue
		}
		all := true
		for _, m := range members {
			if _, ok := set[filepath.Clean(m)]; !ok {
				all = false
				break
			}
		}
		if all {
			return &UnsafeRemovalError{GroupID: id, Paths: append([]string(nil), members...)}
		}
	}
	return nil
}

// normalizePaths 转为 clean 绝对路径并去重（保持首次出现顺序）。
func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		p = filepath.Clean(p)
		// 只解析所在目录：文件本身是软链时仍按“不是普通文件”拒绝。
		p = filepath.Join(scan.ResolveDir(filepath.Dir(p)), filepath.Base(p))
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func isUnder(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
