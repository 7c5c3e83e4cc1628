package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/John-Robertt/imgdup/internal/domain"
	"github.com/John-Robertt/imgdup/internal/infra/hashx"
	"github.com/John-Robertt/imgdup/internal/logging"
)

// hashFunc 可被测试替换，用来模拟 IO 失败。
var hashFunc = hashx.FileMD5

// GroupOptions 控制哈希分组的并发与进度回调。
type GroupOptions struct {
	Workers int
	// OnHashed 在每个文件哈希完成（或失败）后调用；done 单调递增。
	// 回调可能来自汇总 goroutine，但不会并发调用。
	OnHashed func(done, total int)
	Logger   *zap.Logger
}

// GroupByHash 计算每个文件的内容哈希，并按哈希分组。
//
// - 组顺序：按每组首个成员在 files 中的下标
// - 组内顺序：保持 files 中的顺序（发现顺序）
// - 单个文件读失败：记录日志 + 返回 FileIssue，不终止
// - ctx 取消：返回 ctx.Err()，丢弃已计算的部分结果
func GroupByHash(ctx context.Context, files []domain.ImageFile, opts GroupOptions) (domain.HashGroups, []domain.FileIssue, error) {
	log := logging.OrNop(opts.Logger)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}

	type hashResult struct {
		idx  int
		hash domain.ContentHash
		err  error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan hashResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				h, err := hashFunc(files[idx].AbsPath)
				select {
				case results <- hashResult{idx: idx, hash: h, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for i := range files {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	// 结果按下标落位，保证与并发调度无关的确定性输出。
	hashes := make([]domain.ContentHash, len(files))
	failed := make([]error, len(files))
	done := 0
	for r := range results {
		done++
		hashes[r.idx] = r.hash
		failed[r.idx] = r.err
		if opts.OnHashed != nil {
			opts.OnHashed(done, len(files))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	index := make(map[domain.ContentHash]int, len(files))
	groups := make(domain.HashGroups, 0, len(files))
	var issues []domain.FileIssue

	for i := range files {
		if err := failed[i]; err != nil {
			log.Warn("计算哈希失败，跳过", zap.String("path", files[i].AbsPath), zap.Error(err))
			issues = append(issues, domain.FileIssue{
				Path:   files[i].AbsPath,
				Kind:   domain.IssueIORead,
				Reason: err.Error(),
			})
			continue
		}

		h := hashes[i]
		if gi, ok := index[h]; ok {
			groups[gi].Files = append(groups[gi].Files, files[i])
			continue
		}
		index[h] = len(groups)
		groups = append(groups, domain.HashGroup{Hash: h, Files: []domain.ImageFile{files[i]}})
	}

	return groups, issues, nil
}
