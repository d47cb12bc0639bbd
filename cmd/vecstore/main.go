// Command vecstore はテキスト埋め込みのベクトルストアサーバーとCLIツール
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brbranch/vecstore/internal/jsonrpc"
)

// ビルド時変数（-ldflags で変更可能）
var version = "dev"

func main() {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// rootOptions は全コマンド共通のフラグ
type rootOptions struct {
	configPath string
}

// newRootCmd はコマンドツリーを組み立てる（テストごとに新しく作れるよう関数にしている）
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "vecstore",
		Short:         "Vector store for design descriptions",
		Long:          color.CyanString("vecstore") + " - embed text, store vectors, and search them by similarity.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (default ~/.vecstore/config.json)")

	root.AddCommand(
		newInitCmd(opts),
		newServeCmd(opts),
		newSearchCmd(opts),
		newAskCmd(opts),
		newLoadCmd(opts),
		newRebuildCmd(opts),
		newHealthCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vecstore version %s (server %s)\n", version, jsonrpc.ServerVersion)
		},
	}
}

// setupSignalHandler はSIGINT/SIGTERMを受けてcontextをキャンセルする
func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
