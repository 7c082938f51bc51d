package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Calendar time zones must resolve on minimal container images.
	_ "time/tzdata"

	"github.com/memohai/archivist/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "archivist",
		Short:         "Record chat batches and archive them to Drive and Calendar",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runServe()
			return nil
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the webhook server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				runServe()
				return nil
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Load and validate the configuration, then exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := provideConfig()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "config ok: addr=%s line=%t telegram=%t calendar=%t\n",
					cfg.Server.Addr, cfg.Line.Enabled(), cfg.Telegram.Enabled(), cfg.Calendar.Enabled())
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	root.PersistentFlags().String("config", "", "config file path, overrides CONFIG_PATH (default "+config.DefaultConfigPath+")")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil || path == "" {
			return err
		}
		return os.Setenv("CONFIG_PATH", path)
	}
	return root
}
