package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"meanRevBot/config"
	"meanRevBot/internal/adapters/logger"
	"meanRevBot/internal/adapters/sqlite"
	"meanRevBot/internal/analytics"
	"meanRevBot/internal/domain"
	"meanRevBot/internal/experience"
)

// Prints a performance report over the recorded experience database: overall
// metrics, per-side and per-regime breakdowns and monthly returns.
func main() {
	dbPath := flag.String("db", "", "path to the experience database (defaults to DB_PATH)")
	balance := flag.Float64("balance", 10000, "starting balance for return calculations")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	path := *dbPath
	if path == "" {
		path = cfg.DBPath
	}

	ctx := context.Background()
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: path, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open experience database %s: %v", path, err)
	}
	defer repo.Close()

	store, err := experience.NewStore(appLogger, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to create experience store: %v", err)
	}
	if err := store.Load(ctx); err != nil {
		log.Fatalf("FATAL: Failed to load experiences: %v", err)
	}

	experiences := store.All()
	if len(experiences) == 0 {
		fmt.Printf("No experiences recorded in %s\n", path)
		return
	}

	metrics := analytics.AnalyzePerformance(experiences, *balance)

	fmt.Printf("Experience report for %s (%d records)\n\n", path, len(experiences))
	fmt.Printf("Trades:           %d (%d wins / %d losses)\n", metrics.TotalTrades, metrics.WinningTrades, metrics.LosingTrades)
	fmt.Printf("Win rate:         %.1f%%\n", metrics.WinRate*100)
	fmt.Printf("Total profit:     %.2f\n", metrics.TotalProfit)
	fmt.Printf("Profit factor:    %.2f\n", metrics.ProfitFactor)
	fmt.Printf("Average win:      %.2f\n", metrics.AverageWin)
	fmt.Printf("Average loss:     %.2f\n", metrics.AverageLoss)
	fmt.Printf("Expectancy:       %.2f\n", metrics.Expectancy)
	fmt.Printf("Max drawdown:     %.2f%%\n", metrics.MaxDrawdown*100)
	fmt.Printf("Avg duration:     %s\n", metrics.AverageTradeDuration)
	fmt.Printf("Final balance:    %.2f (ROI %.1f%%)\n\n", metrics.FinalBalance, metrics.ReturnOnInvestment*100)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)

	fmt.Fprintln(w, "Side\tTrades\tWinRate\tPNL\t")
	for _, side := range []domain.Side{domain.SideLong, domain.SideShort} {
		sm, ok := metrics.BySide[side]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.2f\t\n", side, sm.Trades, sm.WinRate*100, sm.PNL)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Regime\tTrades\tWinRate\tPNL\t")
	for _, regime := range domain.AllRegimes {
		rm, ok := metrics.ByRegime[regime]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.2f\t\n", regime, rm.Trades, rm.WinRate*100, rm.PNL)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Month\tReturn\t")
	for _, m := range metrics.GetMonthlyReturns() {
		fmt.Fprintf(w, "%s\t%.2f\t\n", m.Month.Format("2006-01"), m.Return)
	}
	w.Flush()
}
