package main

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/imgdup/internal/app/report"
	"github.com/John-Robertt/imgdup/internal/config"
	"github.com/John-Robertt/imgdup/internal/infra/fsx"
)

func newScanCommand(env *cliEnv) *cobra.Command {
	var (
		noPixel  bool
		workers  int
		output   string
		jsonOut  bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "分析目录并报告重复图片（只读，不移动任何文件）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode := env.jsonMode(jsonOut)

			cli := config.CLIArgs{
				Workers:     workers,
				WorkersSet:  cmd.Flags().Changed("workers"),
				LogLevel:    logLevel,
				LogLevelSet: cmd.Flags().Changed("log-level"),
			}
			if len(args) == 1 {
				cli.Path = args[0]
			}
			if cmd.Flags().Changed("no-pixel-verify") {
				cli.PixelVerify = !noPixel
				cli.PixelVerifySet = true
			}

			eff, logger, err := env.loadConfig(cli)
			if err != nil {
				return env.fail(jsonMode, err)
			}
			defer func() { _ = logger.Sync() }()

			rep, err := env.analyze(eff, logger)
			if err != nil {
				return env.fail(jsonMode, err)
			}

			if output != "" {
				var buf bytes.Buffer
				if err := report.WriteText(&buf, rep); err != nil {
					return env.fail(jsonMode, err)
				}
				abs, err := filepath.Abs(output)
				if err != nil {
					return env.fail(jsonMode, err)
				}
				if err := fsx.WriteFileAtomicReplace(filepath.Dir(abs), filepath.Base(abs), buf.Bytes()); err != nil {
					return env.fail(jsonMode, fmt.Errorf("写入报告失败：%w", err))
				}
				fmt.Fprintf(env.stderr, "report: %s\n", abs)
			}

			if jsonMode {
				if err := writeJSON(env.stdout, rep); err != nil {
					return err
				}
			} else {
				renderReport(env.stdout, rep)
			}
			fmt.Fprintf(env.stderr, "完成：images=%d groups=%d removable=%d reclaimable=%s issues=%d\n",
				rep.Summary.TotalImages,
				rep.Summary.DuplicateGroups,
				rep.Summary.RemovableCount,
				humanize.IBytes(uint64(rep.Summary.ReclaimableBytes)),
				len(rep.Issues),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPixel, "no-pixel-verify", false, "跳过像素校验，只按内容哈希分组")
	cmd.Flags().IntVar(&workers, "workers", 0, "哈希并发数（1-32，默认读配置或 4）")
	cmd.Flags().StringVarP(&output, "output", "o", "", "额外写出纯文本报告到该文件")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "强制输出 JSON（stdout 非终端时总是 JSON）")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	return cmd
}
