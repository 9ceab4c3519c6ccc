package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"saman/internal/backend"
	"saman/internal/cli"
	"saman/internal/config"
	"saman/internal/core"
	"saman/internal/ledger"
	"saman/internal/log"
)

var version = "dev"

// app carries what every command needs once the root pre-run has finished.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	now    func() time.Time

	view string
	at   string

	backend *backend.BackendResult
	ledger  *ledger.Ledger
}

func newRootCmd() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:   "saman",
		Short: "Personal expense tracker",
		Long: `saman records daily expenses against a monthly budget and shows where
the money went: summary figures, a category breakdown and a 7-day chart.

Data lives in a sqlite file by default (SQLITE_DB_PATH); set DATA_BACKEND=memory
for a throwaway session.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	root.PersistentFlags().StringVar(&a.view, "view", string(core.Daily), "view mode (daily, monthly)")
	root.PersistentFlags().StringVar(&a.at, "at", "", "reference date YYYY-MM-DD (default today)")

	root.AddCommand(expensesCmd(a))
	root.AddCommand(categoriesCmd(a))
	root.AddCommand(budgetCmd(a))
	root.AddCommand(summaryCmd(a))
	root.AddCommand(chartCmd(a))
	root.AddCommand(exportCmd(a))
	root.AddCommand(serveCmd(a))
	root.AddCommand(versionCmd())

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	a.logger = cli.SetupLogger(log.ComponentCLI)

	cfg, err := cli.LoadAndValidateConfig(a.logger, func(c *config.Config) error {
		// A CLI session is short lived; keep data on disk unless told otherwise.
		if os.Getenv("DATA_BACKEND") == "" {
			c.DataBackend = config.BackendSQLite
		}
		return c.Validate()
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.backend == nil {
		return nil
	}
	err := a.backend.Close()
	a.backend, a.ledger = nil, nil
	return err
}

// openLedger opens the configured backend once per invocation.
func (a *app) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}

	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(a.logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	opts := append(res.LedgerOptions(), ledger.WithLogger(a.logger), ledger.WithClock(a.now))
	l, err := ledger.Open(ctx, res.Store, opts...)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.backend, a.ledger = res, l
	return l, nil
}

// viewParams resolves --view and --at against the local clock.
func (a *app) viewParams() (core.ViewMode, time.Time, error) {
	mode, err := core.ParseViewMode(a.view)
	if err != nil {
		return "", time.Time{}, err
	}
	now := a.now()
	if a.at == "" {
		return mode, now, nil
	}
	ref, err := core.ParseDate(a.at, now.Location())
	if err != nil {
		return "", time.Time{}, err
	}
	return mode, ref, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "saman %s\n", version)
		},
	}
}
