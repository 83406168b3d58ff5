package main

import (
	"github.com/spf13/cobra"

	"github.com/hazyhaar/stockwatch/config"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Dump(cmd.OutOrStdout(), a.cfg)
		},
	}
}
