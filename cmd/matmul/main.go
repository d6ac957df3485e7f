// Command matmul multiplies two square matrices on the GPU and prints
// the inputs and the product.
//
// Usage:
//
//	matmul                         # 16x16, simple kernel
//	matmul run -n 300 --entry main_tiled --verify
//	matmul run --config matmul.toml --repeat 8
//	matmul detect                  # adapter report as JSON
//	matmul config > matmul.toml    # default settings
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/openfluke/matmul/config"
	"github.com/openfluke/matmul/detector"
	"github.com/openfluke/matmul/gpu"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	run := newRunCmd()
	root := &cobra.Command{
		Use:          "matmul",
		Short:        "Dense square matrix multiplication on a WebGPU compute device",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         run.RunE,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug, _ := cmd.Flags().GetBool("debug")
			setupLogging(debug)
		},
	}
	root.PersistentFlags().Bool("debug", false, "log every pipeline step")
	root.Flags().AddFlagSet(run.Flags())
	root.AddCommand(run, newDetectCmd(), newConfigCmd())
	return root
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	gpu.Logger = logger
	gpu.Debug = debug
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Print the GPU adapter, its limits and the recommended workgroup as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			js, err := detector.DetectJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), js)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default settings as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Write(cmd.OutOrStdout(), config.Default())
		},
	}
}
