// Package verify 对哈希候选组做像素级确认，剔除哈希碰撞与无法解码的成员。
package verify

import (
	"context"
	"image"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/John-Robertt/imgdup/internal/domain"
	"github.com/John-Robertt/imgdup/internal/infra/imgx"
	"github.com/John-Robertt/imgdup/internal/logging"
)

// decodeFunc 可被测试替换。
var decodeFunc = imgx.Decode

// ProgressEvent 是校验进度的一次快照。
//
// - Group/TotalGroups：当前组序号（1 起）与组总数
// - Comparison/TotalComparisons：当前比较序号（0 表示组刚开始）与比较总数 Σ(len-1)
// - File：当前处理的文件名（不含目录）
type ProgressEvent struct {
	Group            int
	TotalGroups      int
	Comparison       int
	TotalComparisons int
	File             string
}

// ProgressFunc 接收进度事件；它在执行校验的 goroutine 上同步调用，实现应尽快返回。
type ProgressFunc func(ProgressEvent)

// Stats 汇总一次校验的工作量（用于进度展示与测试断言）。
type Stats struct {
	Groups         int
	Comparisons    int
	Full           int
	Sampled        int
	DecodeFailures int
}

// Verifier 是像素校验器。零值可用（默认采样参数、无进度回调、无日志）。
type Verifier struct {
	Options  imgx.SampleOptions
	Progress ProgressFunc
	Logger   *zap.Logger
}

type cluster struct {
	ref   *image.NRGBA
	files []domain.ImageFile
}

// Verify 逐组确认像素相同性，返回确认后的组（成员数 >= 2）。
//
// 组内做法：每个成员解码后与已有“簇”的参照图比较，相同则并入，否则自成一簇。
// 像素相等是传递的，所以每个成员最多与每个簇比较一次。
// 同一哈希组若分裂出多个 >= 2 的簇，每个簇各自输出一组（Hash 相同）。
//
// ctx 在组之间、比较之间检查；取消时返回 ctx.Err()，不返回部分结果。
func (v *Verifier) Verify(ctx context.Context, groups domain.HashGroups) (domain.HashGroups, Stats, []domain.FileIssue, error) {
	log := logging.OrNop(v.Logger)
	opt := v.Options
	if opt.Threshold <= 0 {
		opt.Threshold = imgx.DefaultSampleThreshold
	}
	if opt.Target <= 0 {
		opt.Target = imgx.DefaultSampleTarget
	}

	candidates := groups.Candidates()
	totalGroups := len(candidates)
	totalComparisons := candidates.TotalComparisons()

	var (
		stats  Stats
		issues []domain.FileIssue
		out    = make(domain.HashGroups, 0, len(candidates))
		cmpIdx int
	)

	emit := func(ev ProgressEvent) {
		if v.Progress != nil {
			ev.TotalGroups = totalGroups
			ev.TotalComparisons = totalComparisons
			v.Progress(ev)
		}
	}

	for gi, g := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, nil, err
		}
		stats.Groups++
		emit(ProgressEvent{Group: gi + 1, Comparison: cmpIdx, File: filepath.Base(g.Files[0].AbsPath)})

		var clusters []*cluster
		for j, f := range g.Files {
			if j > 0 {
				if err := ctx.Err(); err != nil {
					return nil, Stats{}, nil, err
				}
				cmpIdx++
				emit(ProgressEvent{Group: gi + 1, Comparison: cmpIdx, File: filepath.Base(f.AbsPath)})
			}

			img, err := decodeFunc(f.AbsPath)
			if err != nil {
				kind := domain.IssueIORead
				if imgx.IsDecode(err) {
					kind = domain.IssueDecode
				}
				stats.DecodeFailures++
				log.Warn("图片无法比较，排除出分组", zap.String("path", f.AbsPath), zap.Error(err))
				issues = append(issues, domain.FileIssue{Path: f.AbsPath, Kind: kind, Reason: err.Error()})
				continue
			}
			n := imgx.ToNRGBA(img)

			matched := false
			for _, c := range clusters {
				if c.ref.Rect.Dx() != n.Rect.Dx() || c.ref.Rect.Dy() != n.Rect.Dy() {
					continue
				}
				res := imgx.Compare(c.ref, n, opt)
				stats.Comparisons++
				if res.Sampled {
					stats.Sampled++
				} else {
					stats.Full++
				}
				if res.Equal {
					c.files = append(c.files, f)
					matched = true
					break
				}
			}
			if !matched {
				clusters = append(clusters, &cluster{ref: n, files: []domain.ImageFile{f}})
			}
		}

		for _, c := range clusters {
			if len(c.files) >= 2 {
				out = append(out, domain.HashGroup{Hash: g.Hash, Files: c.files})
			}
		}
		if n := dropped(clusters); n > 0 {
			log.Debug("像素校验剔除成员",
				zap.String("hash", string(g.Hash)),
				zap.Int("members", len(g.Files)),
				zap.Int("dropped", n),
			)
		}
	}

	return out, stats, issues, nil
}

func dropped(clusters []*cluster) int {
	n := 0
	for _, c := range clusters {
		if len(c.files) < 2 {
			n += len(c.files)
		}
	}
	return n
}
