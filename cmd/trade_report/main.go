package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/adapters/logger"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/adapters/sqlite"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/analytics"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/domain"
	"github.com/Viperxl007/TradingStatsDashboard-sub001/internal/utils"
)

func main() {
	dbPath := flag.String("db", "./data/trade_tracker.db", "Path to the trade database")
	tickers := flag.String("tickers", "ETHUSDT", "Comma-separated tickers to report on")
	csvOut := flag.String("csv", "", "Optional path to export the trades as CSV")
	flag.Parse()

	appLogger := logger.NewStdLogger(logger.LevelWarn)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: *dbPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("Error opening trade database: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Ticker\tTrades\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tPF\tNoTrigger\t")

	var allTrades []*domain.Trade
	for _, raw := range strings.Split(*tickers, ",") {
		ticker := domain.NormalizeTicker(raw)
		if ticker == "" {
			continue
		}

		trades, err := repo.FindByTicker(ctx, ticker, 0)
		if err != nil {
			log.Printf("Error reading trades for %s: %v", ticker, err)
			continue
		}
		allTrades = append(allTrades, trades...)

		metrics := analytics.AnalyzeClosedTrades(trades)
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t\n",
			ticker,
			metrics.TotalTrades,
			metrics.WinRate*100,
			metrics.AverageWin,
			metrics.AverageLoss,
			metrics.TotalRealized,
			metrics.ProfitFactor,
			metrics.NeverTriggered,
		)
	}
	w.Flush()

	printCloseReasons(allTrades)

	if *csvOut != "" {
		if err := utils.WriteTradesToCSV(allTrades, *csvOut); err != nil {
			log.Fatalf("Error writing CSV to %s: %v", *csvOut, err)
		}
		fmt.Printf("\nExported %d trades to %s\n", len(allTrades), *csvOut)
	}
}

// printCloseReasons breaks down closed trades by how they ended.
func printCloseReasons(trades []*domain.Trade) {
	metrics := analytics.AnalyzeClosedTrades(trades)
	if metrics.TotalTrades == 0 {
		fmt.Println("\nNo closed trades yet.")
		return
	}

	fmt.Println("\n## Close Reason Breakdown")
	for reason, count := range metrics.CloseReasons {
		fmt.Printf("%s: %d\n", reason, count)
	}

	fmt.Println("\n## Monthly Realized P&L")
	for _, month := range metrics.MonthlyPnLSorted() {
		fmt.Printf("%s: %.2f\n", month.Month.Format("2006-01"), month.PnL)
	}
}
