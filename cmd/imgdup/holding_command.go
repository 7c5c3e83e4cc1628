package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/imgdup/internal/config"
	"github.com/John-Robertt/imgdup/internal/relocate"
)

func newHoldingCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holding",
		Short: "查看或清空暂存区",
	}
	cmd.AddCommand(newHoldingStatusCommand(env))
	cmd.AddCommand(newHoldingEmptyCommand(env))
	return cmd
}

func holdingService(env *cliEnv, args []string) (*relocate.Service, func(), error) {
	cli := config.CLIArgs{}
	if len(args) == 1 {
		cli.Path = args[0]
	}
	eff, logger, err := env.loadConfig(cli)
	if err != nil {
		return nil, nil, err
	}
	svc, err := relocate.New(eff.Path, eff.HoldingDir, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, func() { _ = logger.Sync() }, nil
}

func newHoldingStatusCommand(env *cliEnv) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "显示暂存区文件数与占用空间",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode := env.jsonMode(jsonOut)
			svc, done, err := holdingService(env, args)
			if err != nil {
				return env.fail(jsonMode, err)
			}
			defer done()

			st, err := svc.Status()
			if err != nil {
				return env.fail(jsonMode, err)
			}
			if jsonMode {
				return writeJSON(env.stdout, st)
			}
			renderHolding(env.stdout, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "强制输出 JSON")
	return cmd
}

func newHoldingEmptyCommand(env *cliEnv) *cobra.Command {
	var (
		yes     bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "empty [path] --yes",
		Short: "永久删除暂存区内除清单外的全部文件（不可恢复）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode := env.jsonMode(jsonOut)
			svc, done, err := holdingService(env, args)
			if err != nil {
				return env.fail(jsonMode, err)
			}
			defer done()

			res, err := svc.EmptyHoldingArea(env.ctx, yes)
			if err != nil {
				return env.fail(jsonMode, err)
			}
			if jsonMode {
				if err := writeJSON(env.stdout, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(env.stdout, "已删除 %d 个文件，释放 %s\n", res.DeletedCount, humanize.IBytes(uint64(res.FreedBytes)))
				for _, f := range res.Failed {
					fmt.Fprintf(env.stdout, "  失败：%s：%s\n", f.Path, f.Reason)
				}
			}
			if len(res.Failed) > 0 {
				return exitCodeError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "确认永久删除")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "强制输出 JSON")
	return cmd
}
