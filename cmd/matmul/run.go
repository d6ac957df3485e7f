package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openfluke/matmul/config"
	"github.com/openfluke/matmul/gpu"
	"github.com/openfluke/matmul/matrix"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// verifyTolerance is the relative error allowed against the host product.
const verifyTolerance = 1e-4

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Multiply two generated matrices and print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	f := cmd.Flags()
	def := config.Default()
	f.StringP("config", "c", "", "TOML settings file (default "+config.DefaultFile+" when present)")
	f.IntP("size", "n", def.Size, "edge of the square matrices")
	f.String("entry", def.Entry, "kernel entry point: "+gpu.EntrySimple+" or "+gpu.EntryTiled)
	f.Bool("low-power", false, "prefer a low-power adapter")
	f.Bool("allow-fallback", def.AllowFallback, "retry with other adapters when the preferred one is unavailable")
	f.Duration("timeout", 0, "bound on each readback wait, 0 waits indefinitely")
	f.Bool("verify", def.Verify, "compare the product with the host reference")
	f.Bool("print", def.Print, "print the matrices")
	f.Int("repeat", def.Repeat, "independent multiplications to run concurrently")
	f.Uint64("seed", def.Seed, "fill seed for A; B uses seed+1")
	return cmd
}

// loadConfig reads the settings file and lets explicitly set flags
// override it.
func loadConfig(f *pflag.FlagSet) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path, _ := f.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return cfg, err
	}

	if f.Changed("size") {
		cfg.Size, _ = f.GetInt("size")
	}
	if f.Changed("entry") {
		cfg.Entry, _ = f.GetString("entry")
	}
	if f.Changed("low-power") {
		if low, _ := f.GetBool("low-power"); low {
			cfg.PowerPreference = config.LowPower
		} else {
			cfg.PowerPreference = config.HighPerformance
		}
	}
	if f.Changed("allow-fallback") {
		cfg.AllowFallback, _ = f.GetBool("allow-fallback")
	}
	if f.Changed("timeout") {
		d, _ := f.GetDuration("timeout")
		if cfg.MapTimeoutMs, err = timeoutMillis(d); err != nil {
			return cfg, err
		}
	}
	if f.Changed("verify") {
		cfg.Verify, _ = f.GetBool("verify")
	}
	if f.Changed("print") {
		cfg.Print, _ = f.GetBool("print")
	}
	if f.Changed("repeat") {
		cfg.Repeat, _ = f.GetInt("repeat")
	}
	if f.Changed("seed") {
		cfg.Seed, _ = f.GetUint64("seed")
	}
	return cfg, cfg.Validate()
}

// timeoutMillis converts a wait bound to whole milliseconds, rounding up
// so a positive bound never becomes 0, which means no bound at all.
func timeoutMillis(d time.Duration) (int, error) {
	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative, got %s", d)
	}
	return int((d + time.Millisecond - 1) / time.Millisecond), nil
}

func run(ctx context.Context, w io.Writer, cfg config.Config) error {
	gc, err := gpu.Acquire(cfg.GPUOptions())
	if err != nil {
		return err
	}
	defer gc.Release()

	m, err := gpu.NewMultiplier(gc, cfg.Entry)
	if err != nil {
		return err
	}
	defer m.Release()
	m.Timeout = cfg.MapTimeout()

	a := matrix.Hashed(cfg.Size, cfg.Seed)
	b := matrix.Hashed(cfg.Size, cfg.Seed+1)
	jobs := make([]gpu.Job, cfg.Repeat)
	for i := range jobs {
		jobs[i] = gpu.Job{A: a.Data, B: b.Data, Size: cfg.Size}
	}

	start := time.Now()
	results, err := m.MultiplyBatch(ctx, jobs, 0)
	if err != nil {
		return err
	}
	slog.Debug("multiplied", "size", cfg.Size, "entry", cfg.Entry, "runs", cfg.Repeat, "elapsed", time.Since(start))

	if cfg.Print {
		product := matrix.Matrix{Size: cfg.Size, Data: results[0]}
		if err := printAll(w, a, b, product); err != nil {
			return err
		}
	}

	if cfg.Verify {
		want, err := matrix.Multiply(a, b)
		if err != nil {
			return err
		}
		for i, got := range results {
			if !matrix.ApproxEqual(got, want.Data, verifyTolerance) {
				return fmt.Errorf("run %d differs from the host product by up to %g", i, matrix.MaxAbsDiff(got, want.Data))
			}
		}
		slog.Info("verified against host product", "runs", len(results), "tolerance", verifyTolerance)
	}
	return nil
}

func printAll(w io.Writer, a, b, c matrix.Matrix) error {
	if err := matrix.Fprint(w, "Matrix A:", a); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := matrix.Fprint(w, "Matrix B:", b); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return matrix.Fprint(w, "Result Matrix:", c)
}
