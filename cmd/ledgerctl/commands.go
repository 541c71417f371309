package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/aristath/papertrader/internal/config"
	"github.com/aristath/papertrader/internal/di"
	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/valuation"
	"github.com/aristath/papertrader/pkg/logger"
	"github.com/google/subcommands"
)

var commands = []subcommands.Command{
	&accountCmd{},
	&syncPricesCmd{},
	&valueCmd{},
	&backupCmd{},
}

// openContainer wires the application against the configured data
// directory. The scheduler is never started.
func openContainer(verbose bool) (*di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true})
	return di.Wire(cfg, log)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

type accountCmd struct {
	verbose bool
}

func (*accountCmd) Name() string     { return "account" }
func (*accountCmd) Synopsis() string { return "show the cash balance and open positions" }
func (*accountCmd) Usage() string {
	return `ledgerctl account [-v]

  Prints the cash balance and every open position at average cost.
`
}

func (c *accountCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.verbose, "v", false, "verbose logging")
}

func (c *accountCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := openContainer(c.verbose)
	if err != nil {
		return fail(err)
	}
	defer container.Close()

	account, err := container.PortfolioService.GetAccount(ctx)
	if err != nil {
		return fail(err)
	}
	positions, err := container.PortfolioService.ListPositions(ctx)
	if err != nil {
		return fail(err)
	}

	writeAccount(os.Stdout, account, positions, container.Config.Currency)
	return subcommands.ExitSuccess
}

func writeAccount(out io.Writer, account *domain.Account, positions []domain.Position, currency string) {
	fmt.Fprintf(out, "Balance: %s\n", domain.FormatMoney(account.Balance, currency))
	if len(positions) == 0 {
		fmt.Fprintln(out, "No open positions")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Symbol\tQuantity\tAverage cost\tCost basis\t")
	for _, p := range positions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t\n",
			p.Symbol, p.Quantity,
			domain.FormatMoney(p.AverageCost, currency),
			domain.FormatMoney(p.CostBasis(), currency))
	}
	w.Flush()
}

type syncPricesCmd struct {
	verbose bool
}

func (*syncPricesCmd) Name() string     { return "sync-prices" }
func (*syncPricesCmd) Synopsis() string { return "fetch recent closes for held symbols" }
func (*syncPricesCmd) Usage() string {
	return `ledgerctl sync-prices [-v] [SYMBOL...]

  Fetches daily closes from the price oracle and stores new ones. With no
  arguments every held symbol is synced. Existing (symbol, date) rows are
  never overwritten.
`
}

func (c *syncPricesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.verbose, "v", false, "verbose logging")
}

func (c *syncPricesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := openContainer(c.verbose)
	if err != nil {
		return fail(err)
	}
	defer container.Close()

	symbols := make([]string, 0, f.NArg())
	for _, arg := range f.Args() {
		if s := domain.NormalizeSymbol(arg); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		symbols, err = container.PortfolioService.HeldSymbols(ctx)
		if err != nil {
			return fail(err)
		}
	}
	if len(symbols) == 0 {
		fmt.Println("No symbols to sync")
		return subcommands.ExitSuccess
	}

	result, err := container.PriceSyncJob.SyncSymbols(ctx, symbols)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Inserted %d closes, skipped %d existing\n", result.Inserted, result.Skipped)
	return subcommands.ExitSuccess
}

type valueCmd struct {
	days    int
	sma     int
	mode    string
	verbose bool
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "print the portfolio value series" }
func (*valueCmd) Usage() string {
	return `ledgerctl value [-days N] [-mode current|historical] [-sma K]

  Values holdings at every stored close in the window. "current" uses today's
  holdings for every date; "historical" replays the transaction ledger.
`
}

func (c *valueCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", 0, "window in days (0 uses VALUATION_WINDOW_DAYS)")
	f.IntVar(&c.sma, "sma", 0, "add a simple moving average over K points")
	f.StringVar(&c.mode, "mode", string(valuation.ModeCurrent), "valuation mode: current or historical")
	f.BoolVar(&c.verbose, "v", false, "verbose logging")
}

func (c *valueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := openContainer(c.verbose)
	if err != nil {
		return fail(err)
	}
	defer container.Close()

	points, err := container.ValuationService.ComputeSeries(ctx, valuation.SeriesOptions{
		Mode:       valuation.Mode(c.mode),
		WindowDays: c.days,
		SMAPeriod:  c.sma,
	})
	if err != nil {
		return fail(err)
	}

	writeSeries(os.Stdout, points, container.Config.Currency)
	return subcommands.ExitSuccess
}

func writeSeries(out io.Writer, points []domain.ValuePoint, currency string) {
	if len(points) == 0 {
		fmt.Fprintln(out, "No valuation data")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Date\tValue\tSMA\t")
	for _, p := range points {
		sma := "-"
		if p.SMA != nil {
			sma = domain.FormatMoney(*p.SMA, currency)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", p.Date, domain.FormatMoney(p.TotalValue, currency), sma)
	}
	w.Flush()
}

type backupCmd struct {
	list    bool
	verbose bool
}

func (*backupCmd) Name() string     { return "backup" }
func (*backupCmd) Synopsis() string { return "upload a ledger snapshot to the backup bucket" }
func (*backupCmd) Usage() string {
	return `ledgerctl backup [-list]

  Snapshots portfolio.db and uploads it to BACKUP_S3_BUCKET. With -list,
  prints the archives already stored instead.
`
}

func (c *backupCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "list", false, "list stored backups")
	f.BoolVar(&c.verbose, "v", false, "verbose logging")
}

func (c *backupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := openContainer(c.verbose)
	if err != nil {
		return fail(err)
	}
	defer container.Close()

	if container.BackupService == nil {
		return fail(fmt.Errorf("backups are disabled: set BACKUP_S3_BUCKET"))
	}

	if c.list {
		backups, err := container.BackupService.ListBackups(ctx)
		if err != nil {
			return fail(err)
		}
		for _, b := range backups {
			fmt.Printf("%s  %10d  %s\n", b.Timestamp.Format("2006-01-02 15:04:05"), b.SizeBytes, b.Key)
		}
		return subcommands.ExitSuccess
	}

	result, err := container.BackupService.Run(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Uploaded %s (%d bytes, sha256 %s)\n", result.Key, result.SizeBytes, result.Checksum)
	return subcommands.ExitSuccess
}
