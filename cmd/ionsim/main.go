package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ion/config"
	"ion/internal/buildinfo"
	"ion/internal/logging"
	"ion/kernel/sched"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ionsim",
		Short:         "Drive the ion scheduler with a simulated trap loop",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		cfgPath   string
		logLevel  string
		logFormat string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scheduling workload and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}

			logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			sched.SetFatalHandler(func(info sched.FatalInfo) {
				logger.Error("scheduler invariant violated",
					"reason", info.Reason, "stack", string(info.Stack))
			})
			sim, err := newSimulation(cfg, logger)
			if err != nil {
				return err
			}
			sum, err := sim.run()
			if err != nil {
				return err
			}
			sum.print(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to a YAML workload file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build identifier",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Short())
		},
	}
}
