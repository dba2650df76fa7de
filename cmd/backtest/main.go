// cmd/backtest replays archived ticks from SQLite through the signal engine
// to evaluate divergence parameters without live market data.
//
// Usage:
//
//	go run ./cmd/backtest seed --db=data/backtest.db --count=5000
//	go run ./cmd/backtest run --db=data/backtest.db --params=params.yaml
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay archived ticks through the divergence signal engine",
	Long: `Backtest replays ticks stored by the signal engine (or generated with
"seed") through the same indicator, divergence and confirmation pipeline
used live, then prints a per-kind signal summary.`,
	SilenceUsage: true,
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
