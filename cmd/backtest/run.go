package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signal-systemv1/config"
	"signal-systemv1/internal/marketdata/replay"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/paper"
	sigengine "signal-systemv1/internal/signal"
	sqlitestore "signal-systemv1/internal/store/sqlite"
)

type runOptions struct {
	DBPath     string
	Instrument string
	From, To   string // RFC3339, empty = unbounded
	Speed      float64
	ParamsFile string
	Timeframe  string
	Persist    bool
	Verbose    bool

	// SlippageBps worsens paper fills; negative disables paper evaluation.
	SlippageBps float64
}

type summary struct {
	Ticks         int
	Signals       int
	ByKind        map[model.SignalKind]int
	ByInstrument  map[string]int
	AvgConfidence float64 // over actionable signals
	Paper         paper.Summary
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay ticks and summarise the signals produced",
	Example: `  backtest run --db data/signals.db --instrument EURUSD
  backtest run --params params.yaml --from 2024-03-01T00:00:00Z --persist`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := backtest(ctx, runOpts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runOpts.DBPath, "db", "data/signals.db", "path to SQLite database holding archived ticks")
	f.StringVarP(&runOpts.Instrument, "instrument", "i", "", "replay a single instrument (default: all)")
	f.StringVar(&runOpts.From, "from", "", "start time, RFC3339 (default: first tick)")
	f.StringVar(&runOpts.To, "to", "", "end time, RFC3339 (default: last tick)")
	f.Float64Var(&runOpts.Speed, "speed", 0, "playback speed multiplier (0=max, 1=realtime, 100=100x)")
	f.StringVarP(&runOpts.ParamsFile, "params", "p", "", "YAML signal parameters (default: built-in defaults)")
	f.StringVar(&runOpts.Timeframe, "timeframe", "", "timeframe label stamped on signals")
	f.BoolVar(&runOpts.Persist, "persist", false, "write produced signals back to the database")
	f.BoolVarP(&runOpts.Verbose, "verbose", "v", false, "print every actionable signal")
	f.Float64Var(&runOpts.SlippageBps, "slippage-bps", 0, "paper fill slippage in basis points (negative skips paper evaluation)")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func loadParams(opts runOptions) (sigengine.Params, error) {
	p := sigengine.DefaultParams()
	if opts.ParamsFile != "" {
		var err error
		if p, err = config.LoadParams(opts.ParamsFile); err != nil {
			return p, err
		}
	}
	if opts.Timeframe != "" {
		p.Timeframe = opts.Timeframe
	}
	return p, p.Validate()
}

func parseBound(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

// backtest replays the selected ticks through a fresh router and tallies
// every signal it emits.
func backtest(ctx context.Context, opts runOptions, out io.Writer) (summary, error) {
	s := summary{
		ByKind:       make(map[model.SignalKind]int),
		ByInstrument: make(map[string]int),
	}

	params, err := loadParams(opts)
	if err != nil {
		return s, err
	}
	from, err := parseBound("from", opts.From)
	if err != nil {
		return s, err
	}
	to, err := parseBound("to", opts.To)
	if err != nil {
		return s, err
	}

	reader, err := sqlitestore.NewReader(opts.DBPath)
	if err != nil {
		return s, fmt.Errorf("sqlite open failed: %w", err)
	}
	defer reader.Close()

	var (
		persistCh   chan model.TradingSignal
		persistDone chan struct{}
	)
	if opts.Persist {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: opts.DBPath})
		if err != nil {
			return s, fmt.Errorf("sqlite writer: %w", err)
		}
		defer w.Close()
		persistCh = make(chan model.TradingSignal, 1024)
		persistDone = make(chan struct{})
		go func() {
			defer close(persistDone)
			w.Run(context.Background(), persistCh)
		}()
	}

	router := sigengine.NewRouter(params, 10000, nil, sigengine.WithBlockingOutput())
	tickCh := make(chan model.Tick, 10000)

	replayErr := make(chan error, 1)
	go func() {
		n, err := replay.New(reader).Run(ctx, replay.Options{
			Instrument: opts.Instrument,
			From:       from,
			To:         to,
			Speed:      opts.Speed,
		}, tickCh)
		s.Ticks = n
		close(tickCh)
		replayErr <- err
	}()
	go router.Run(ctx, tickCh)

	var (
		confSum    float64
		actionable int
		produced   []model.TradingSignal
	)
	for sig := range router.Signals() {
		produced = append(produced, sig)
		s.Signals++
		s.ByKind[sig.Kind]++
		s.ByInstrument[sig.Instrument]++
		if sig.Kind.Actionable() {
			actionable++
			confSum += sig.Confidence
			if opts.Verbose {
				fmt.Fprintf(out, "  [%s] %-4s %-8s conf=%.2f entry=%.5f %s\n",
					sig.TS.Format(time.RFC3339), sig.Kind, sig.Instrument, sig.Confidence, sig.EntryPrice, sig.Reason)
			}
		}
		if persistCh != nil {
			persistCh <- sig
		}
	}
	if actionable > 0 {
		s.AvgConfidence = confSum / float64(actionable)
	}

	if persistCh != nil {
		close(persistCh)
		<-persistDone
	}

	err = <-replayErr
	if err != nil && ctx.Err() == nil {
		return s, fmt.Errorf("replay: %w", err)
	}
	if s.Ticks == 0 {
		log.Println("[backtest] no ticks matched; record some with ARCHIVE_TICKS=true or run `backtest seed`")
		return s, nil
	}

	if opts.SlippageBps >= 0 && ctx.Err() == nil {
		ticks, err := reader.ReadTicks(ctx, opts.Instrument, from, to)
		if err != nil {
			return s, fmt.Errorf("paper ticks: %w", err)
		}
		s.Paper = paper.Summarize(paper.Evaluate(ticks, produced, opts.SlippageBps))
	}
	return s, nil
}

func printSummary(w io.Writer, s summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        BACKTEST COMPLETE             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Ticks replayed:    %-16d ║\n", s.Ticks)
	fmt.Fprintf(w, "║  Signals:           %-16d ║\n", s.Signals)
	for _, k := range []model.SignalKind{model.SignalBuy, model.SignalSell, model.SignalHold} {
		fmt.Fprintf(w, "║    %-4s             %-16d ║\n", k, s.ByKind[k])
	}
	fmt.Fprintf(w, "║  Avg confidence:    %-16.3f ║\n", s.AvgConfidence)
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Paper trades:      %-16d ║\n", s.Paper.Trades)
	fmt.Fprintf(w, "║    target/stop      %-16s ║\n", fmt.Sprintf("%d/%d", s.Paper.Wins, s.Paper.Losses))
	fmt.Fprintf(w, "║    expired/open     %-16s ║\n", fmt.Sprintf("%d/%d", s.Paper.Expired, s.Paper.Open))
	fmt.Fprintf(w, "║  Win rate:          %-16.3f ║\n", s.Paper.WinRate)
	fmt.Fprintf(w, "║  Total return %%:    %-16.3f ║\n", s.Paper.TotalReturnPct)
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	insts := make([]string, 0, len(s.ByInstrument))
	for inst := range s.ByInstrument {
		insts = append(insts, inst)
	}
	sort.Strings(insts)
	for _, inst := range insts {
		fmt.Fprintf(w, "║  %-18s %-16d ║\n", inst, s.ByInstrument[inst])
	}
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")
}
