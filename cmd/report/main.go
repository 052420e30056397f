package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"mt5dash/config"
	"mt5dash/internal/adapters/logger"
	"mt5dash/internal/adapters/mt5bridge"
	"mt5dash/internal/adapters/sqlite"
	"mt5dash/internal/analytics"
	"mt5dash/internal/app"
	"mt5dash/internal/utils"
	"mt5dash/internal/web"
)

func main() {
	login := flag.Int64("login", 0, "account login to report on (0 = every configured account)")
	fromStr := flag.String("from", "", "range start (RFC 3339, default: configured history window)")
	toStr := flag.String("to", "", "range end (RFC 3339, default: now)")
	csvPath := flag.String("csv", "", "optional path to export the closed trades as CSV")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	bridge, err := mt5bridge.New(mt5bridge.Config{
		BaseURL:              cfg.BridgeURL,
		Logger:               appLogger,
		HTTPTimeout:          cfg.HTTPTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize bridge client: %v", err)
	}

	service, err := app.NewService(cfg, appLogger, bridge, repo)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize service: %v", err)
	}
	defer service.Close()

	var from, to time.Time
	if *fromStr != "" {
		if from, err = time.Parse(time.RFC3339, *fromStr); err != nil {
			log.Fatalf("FATAL: invalid -from: %v", err)
		}
	}
	if *toStr != "" {
		if to, err = time.Parse(time.RFC3339, *toStr); err != nil {
			log.Fatalf("FATAL: invalid -to: %v", err)
		}
	}

	ctx := context.Background()
	for _, acc := range cfg.Accounts {
		if *login != 0 && acc.Login != *login {
			continue
		}
		if err := report(ctx, service, acc, from, to, *csvPath); err != nil {
			log.Fatalf("FATAL: report for account %d failed: %v", acc.Login, err)
		}
	}
}

func report(ctx context.Context, service *app.Service, acc config.Account, from, to time.Time, csvPath string) error {
	fmt.Printf("\n## Account %d (%s)\n\n", acc.Login, acc.Name)

	kpis, err := service.KPIs(ctx, acc.Login, from, to)
	if err != nil {
		return err
	}
	comparisons, err := service.CompareStrategies(ctx, acc.Login, from, to)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Strategy\tTrades\tWinRate\tNetProfit\tPF\tMaxDD\tMaxDD%\tWinStreak\tLossStreak\t")
	for _, cmp := range comparisons {
		printKPIRow(w, web.FormatStrategy(cmp.Strategy), cmp.KPIs)
	}
	printKPIRow(w, "TOTAL", kpis)
	w.Flush()

	if csvPath != "" {
		trades, err := service.ClosedTrades(ctx, acc.Login, from, to)
		if err != nil {
			return err
		}
		path := fmt.Sprintf("%s_%d.csv", csvPath, acc.Login)
		if err := utils.WriteTradesToCSV(trades, path); err != nil {
			return err
		}
		fmt.Printf("\nExported %d trades to %s\n", len(trades), path)
	}
	return nil
}

func printKPIRow(w *tabwriter.Writer, label string, k analytics.KPISnapshot) {
	fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%s\t%.2f\t%.2f\t%d\t%d\t\n",
		label,
		k.NumTrades,
		k.WinRate,
		k.TotalNetProfit,
		formatProfitFactor(k.ProfitFactor),
		k.MaxDrawdownValue,
		k.MaxDrawdownPercent,
		k.MaxConsecutiveWins,
		k.MaxConsecutiveLosses,
	)
}

func formatProfitFactor(pf float64) string {
	switch {
	case math.IsNaN(pf):
		return "-"
	case math.IsInf(pf, 1):
		return "inf"
	default:
		return fmt.Sprintf("%.2f", pf)
	}
}
