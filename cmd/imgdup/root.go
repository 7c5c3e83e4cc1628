package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

func newRootCommand(env *cliEnv) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imgdup",
		Short:         "查找目录树中的重复图片，并把多余副本移入可恢复的暂存区",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetOut(env.stdout)
	rootCmd.SetErr(env.stderr)

	rootCmd.AddCommand(newScanCommand(env))
	rootCmd.AddCommand(newRelocateCommand(env))
	rootCmd.AddCommand(newHoldingCommand(env))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "imgdup %s\n", version)
		},
	})
	return rootCmd
}
