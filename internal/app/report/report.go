// Package report 把确认后的重复组构建为对外稳定的 domain.Report。
package report

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/imgdup/internal/domain"
	"github.com/John-Robertt/imgdup/internal/infra/fsx"
	"github.com/John-Robertt/imgdup/internal/infra/imgx"
)

// Input 是一次构建所需的全部输入。
type Input struct {
	Root        string
	RunID       string
	TotalImages int
	Groups      domain.HashGroups
	Verified    bool
	Issues      []domain.FileIssue
	StartedAt   time.Time
	FinishedAt  time.Time

	// Loader 读取创建时间/尺寸；nil 时使用 LoadAttrs。
	Loader domain.AttrLoader
}

// LoadAttrs 是默认的惰性属性读取：创建时间来自 statx（退化为 ctime/mtime），尺寸只解析图片头。
// 尺寸解析失败不算错误（例如 HEIC），仅表现为“尺寸未知”。
func LoadAttrs(path string) (domain.ExtraAttrs, error) {
	var a domain.ExtraAttrs
	ct, err := fsx.CreatedAt(path)
	if err != nil {
		return a, err
	}
	a.CreatedAt = ct
	if w, h, err := imgx.DecodeDimensions(path); err == nil {
		a.Width, a.Height = w, h
	}
	return a, nil
}

// Build 选出每组 keeper 并生成报告。组 ID 从 1 开始，顺序与输入一致。
func Build(in Input) domain.Report {
	load := in.Loader
	if load == nil {
		load = LoadAttrs
	}

	rep := domain.Report{
		RunID:      in.RunID,
		Root:       in.Root,
		Verified:   in.Verified,
		StartedAt:  in.StartedAt,
		FinishedAt: in.FinishedAt,
		Summary:    domain.ReportSummary{TotalImages: in.TotalImages},
		Issues:     append([]domain.FileIssue(nil), in.Issues...),
	}

	id := 0
	for _, g := range in.Groups {
		if len(g.Files) < 2 {
			continue
		}
		id++
		dg := domain.DuplicateGroup{
			ID:        id,
			Hash:      g.Hash,
			Files:     g.Files,
			KeeperIdx: SelectKeeper(in.Root, g.Files),
		}
		rep.Groups = append(rep.Groups, groupReport(dg, load))
	}

	rep.Finalize()
	return rep
}

func groupReport(g domain.DuplicateGroup, load domain.AttrLoader) domain.GroupReport {
	gr := domain.GroupReport{
		ID:          g.ID,
		Hash:        string(g.Hash),
		Size:        len(g.Files),
		KeeperIndex: g.KeeperIdx,
		Members:     make([]domain.MemberReport, 0, len(g.Files)),
	}

	if g.Hash != "" {
		gr.ReclaimableBytes = g.Keeper().Size * int64(len(g.Files)-1)
	} else {
		for _, f := range g.Removable() {
			gr.ReclaimableBytes += f.Size
		}
	}

	for i, f := range g.Files {
		m := domain.MemberReport{
			Path:     f.AbsPath,
			RelPath:  f.RelPath,
			IsKeeper: i == g.KeeperIdx,
			Size:     f.Size,
		}
		if a, err := f.Extra(load); err == nil {
			if !a.CreatedAt.IsZero() {
				t := a.CreatedAt.UTC()
				m.CreatedAt = &t
			}
			if a.HasDimensions() {
				m.Dimensions = &domain.Dimensions{Width: a.Width, Height: a.Height}
			}
		}
		gr.Members = append(gr.Members, m)
	}
	return gr
}

// SelectKeeper 返回 keeper 下标：
// 优先直接位于 root 下的成员；其次路径字符串最短；再平局取最先出现者。
func SelectKeeper(root string, files []domain.ImageFile) int {
	root = filepath.Clean(root)
	best := -1
	bestTop := false
	for i, f := range files {
		top := filepath.Dir(filepath.Clean(f.AbsPath)) == root
		switch {
		case best < 0:
		case top && !bestTop:
		case top == bestTop && len(f.AbsPath) < len(files[best].AbsPath):
		default:
			continue
		}
		best, bestTop = i, top
	}
	if best < 0 {
		return 0
	}
	return best
}

// SuggestedRemovals 返回报告中所有非 keeper 成员的绝对路径（按组、组内顺序）。
// 每组都保留 keeper，所以这批路径必然通过移动前的安全检查。
func SuggestedRemovals(rep domain.Report) []string {
	var out []string
	for _, g := range rep.Groups {
		for _, m := range g.Members {
			if !m.IsKeeper {
				out = append(out, m.Path)
			}
		}
	}
	return out
}

// KnownGroups 把报告还原为移动安全检查需要的 groupID -> 成员路径。
func KnownGroups(rep domain.Report) map[int][]string {
	out := make(map[int][]string, len(rep.Groups))
	for _, g := range rep.Groups {
		ps := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			ps = append(ps, m.Path)
		}
		out[g.ID] = ps
	}
	return out
}

func folderOf(m domain.MemberReport) string {
	dir := filepath.Dir(m.RelPath)
	if dir == "." {
		return "."
	}
	return strings.TrimSuffix(filepath.ToSlash(dir), "/")
}
