// Package planner 只做“读现状 + 算计划”，不做任何写入或移动。
package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/imgdup/internal/domain"
)

// Move 是一次计划内的移动（绝对路径）。
type Move struct {
	Src string
	Dst string
}

// ReadHoldingState 读取暂存区现状（只做 ReadDir/stat，不读文件内容）。
// 目录不存在时返回 Exists=false 的空状态且不报错。
// 统计时不计入清单文件 manifest，但它的名字仍会占位，避免被移入的文件覆盖。
func ReadHoldingState(dir, manifest string) (domain.HoldingState, error) {
	st := domain.HoldingState{
		Dir:           dir,
		ExistingNames: map[string]struct{}{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return domain.HoldingState{}, err
	}
	st.Exists = true

	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
		if e.Name() == manifest || !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// ReadDir 与 Info 之间被删掉：按不存在处理。
			if os.IsNotExist(err) {
				continue
			}
			return domain.HoldingState{}, err
		}
		st.FileCount++
		st.TotalBytes += fi.Size()
	}
	return st, nil
}

// PlanMoves 为每个源文件分配暂存区内的目标名（确定性，不触碰磁盘）。
// 尽量保留原文件名；冲突时改为 stem_N.ext（N 从 1 递增）。
func PlanMoves(srcs []string, st domain.HoldingState) []Move {
	used := make(map[string]struct{}, len(st.ExistingNames)+len(srcs))
	for n := range st.ExistingNames {
		used[n] = struct{}{}
	}

	moves := make([]Move, 0, len(srcs))
	for _, src := range srcs {
		name := allocName(filepath.Base(src), used)
		used[name] = struct{}{}
		moves = append(moves, Move{Src: src, Dst: filepath.Join(st.Dir, name)})
	}
	return moves
}

func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for n := 1; ; n++ {
		cand := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}
