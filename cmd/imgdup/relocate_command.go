package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/imgdup/internal/app/report"
	"github.com/John-Robertt/imgdup/internal/config"
	"github.com/John-Robertt/imgdup/internal/domain"
	"github.com/John-Robertt/imgdup/internal/relocate"
)

// relocateDoc 是 relocate 的 JSON 输出；部分失败时同时带上 error_code。
type relocateDoc struct {
	RunID     string                  `json:"run_id"`
	Result    domain.RelocationResult `json:"result"`
	ErrorCode string                  `json:"error_code,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

func newRelocateCommand(env *cliEnv) *cobra.Command {
	var (
		allSuggested bool
		jsonOut      bool
	)

	cmd := &cobra.Command{
		Use:   "relocate [path] <file>...",
		Short: "把选中的重复文件移入暂存区（先重新分析，保证每组至少保留一个）",
		Long: `relocate 会先对 path 重新做一次分析，拿到最新的重复组，
再把指定文件（或 --all-suggested 时每组的全部非 keeper 成员）移入暂存区。
若某个重复组的全部成员都在本批中，整批拒绝，不移动任何文件。

第一个参数是已存在的目录时视为 path；否则从 imgdup.toml 读取 path。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode := env.jsonMode(jsonOut)

			cwd, err := env.getwd()
			if err != nil {
				return env.fail(jsonMode, err)
			}

			root, files := splitRootArg(cwd, args)
			if !allSuggested && len(files) == 0 {
				return env.fail(jsonMode, errors.New("需要至少一个文件，或使用 --all-suggested"))
			}
			if allSuggested && len(files) > 0 {
				return env.fail(jsonMode, errors.New("--all-suggested 不能与具体文件同时使用"))
			}

			eff, logger, err := env.loadConfig(config.CLIArgs{Path: root})
			if err != nil {
				return env.fail(jsonMode, err)
			}
			defer func() { _ = logger.Sync() }()

			rep, err := env.analyze(eff, logger)
			if err != nil {
				return env.fail(jsonMode, err)
			}

			if allSuggested {
				files = report.SuggestedRemovals(rep)
			}

			svc, err := relocate.New(eff.Path, eff.HoldingDir, logger)
			if err != nil {
				return env.fail(jsonMode, err)
			}
			res, err := svc.Relocate(env.ctx, files, report.KnownGroups(rep))
			// 中途取消时已移动的文件仍要报告。
			if err != nil && !relocate.IsPartial(err) && !(errors.Is(err, context.Canceled) && len(res.Moved) > 0) {
				return env.fail(jsonMode, err)
			}

			doc := relocateDoc{RunID: rep.RunID, Result: res}
			if err != nil {
				doc.ErrorCode = errorCode(err)
				doc.Error = err.Error()
			}
			if jsonMode {
				if werr := writeJSON(env.stdout, doc); werr != nil {
					return werr
				}
			} else {
				renderRelocation(env.stdout, res)
			}
			fmt.Fprintf(env.stderr, "完成：moved=%d failed=%d bytes=%s holding=%s\n",
				len(res.Moved), len(res.Failed), humanize.IBytes(uint64(res.MovedBytes())), res.HoldingDir)

			if err != nil {
				return exitCodeError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&allSuggested, "all-suggested", false, "移动每组除 keeper 外的全部成员")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "强制输出 JSON")
	return cmd
}

// splitRootArg：首个参数是已存在的目录时作为扫描根，其余参数为文件（相对 cwd 解析）。
func splitRootArg(cwd string, args []string) (string, []string) {
	var root string
	if len(args) > 0 {
		if fi, err := os.Stat(absFrom(cwd, args[0])); err == nil && fi.IsDir() {
			root, args = args[0], args[1:]
		}
	}
	files := make([]string, 0, len(args))
	for _, a := range args {
		files = append(files, absFrom(cwd, a))
	}
	return root, files
}

func absFrom(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
