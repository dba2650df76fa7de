package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"signal-systemv1/internal/model"
	sqlitestore "signal-systemv1/internal/store/sqlite"
	"signal-systemv1/internal/tickgen"
)

type seedOptions struct {
	DBPath      string
	Instruments string
	Count       int
	Step        time.Duration
	Start       string // RFC3339
	Seed        int64
}

var seedOpts seedOptions

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Archive simulated ticks for offline backtests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		n, err := seed(ctx, seedOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived %d ticks to %s\n", n, seedOpts.DBPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	f := seedCmd.Flags()
	f.StringVar(&seedOpts.DBPath, "db", "data/backtest.db", "path to SQLite database")
	f.StringVar(&seedOpts.Instruments, "instruments", "EURUSD,GBPUSD", "NAME[:PRICE] specs")
	f.IntVarP(&seedOpts.Count, "count", "n", 5000, "ticks per instrument")
	f.DurationVar(&seedOpts.Step, "step", time.Minute, "time between ticks")
	f.StringVar(&seedOpts.Start, "start", "2024-01-02T00:00:00Z", "timestamp of the first tick, RFC3339")
	f.Int64Var(&seedOpts.Seed, "seed", 1, "random seed")
}

// seed writes Count generated ticks per instrument and returns the total.
func seed(ctx context.Context, opts seedOptions) (int, error) {
	specs, err := tickgen.ParseSpecs(opts.Instruments)
	if err != nil {
		return 0, err
	}
	if len(specs) == 0 {
		return 0, fmt.Errorf("no instruments given")
	}
	start, err := parseBound("start", opts.Start)
	if err != nil {
		return 0, err
	}
	if opts.Step <= 0 {
		return 0, fmt.Errorf("--step must be positive")
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: opts.DBPath})
	if err != nil {
		return 0, err
	}
	defer w.Close()

	ch := make(chan model.Tick, 1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.RunTicks(context.Background(), ch)
	}()

	gen := tickgen.New(specs, opts.Seed)
	total := 0
	for i := 0; i < opts.Count && ctx.Err() == nil; i++ {
		for _, t := range gen.Next(start.Add(time.Duration(i) * opts.Step)) {
			ch <- t
			total++
		}
	}
	close(ch)
	<-done
	return total, ctx.Err()
}
