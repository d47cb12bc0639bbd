package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brbranch/vecstore/internal/config"
)

// ErrConfigExists は設定ファイルが既にあることを示す
var ErrConfigExists = errors.New("config file already exists")

func newInitCmd(root *rootOptions) *cobra.Command {
	var force, withEnv bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager(root.configPath)
			if err != nil {
				return err
			}
			path := mgr.GetConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
			}
			if withEnv {
				if err := mgr.ApplyEnv(); err != nil {
					return err
				}
			}
			if err := mgr.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&withEnv, "env", false, "Include VECSTORE_* environment overrides in the written file")
	return cmd
}
