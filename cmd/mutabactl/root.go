package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mutaba/internal/aggregate"
	"mutaba/internal/amqp"
	"mutaba/internal/cli"
	"mutaba/internal/config"
	"mutaba/internal/core"
	"mutaba/internal/fx"
	apphttp "mutaba/internal/http"
	applog "mutaba/internal/log"
	"mutaba/internal/services"
	"mutaba/internal/storage"
)

var (
	flagJSON     bool
	flagDBPath   string
	flagOffline  bool
	flagLogLevel string

	flagMonth         string
	flagCurrency      string
	flagOpening       string
	flagNoReceivables bool
	flagNoProjections bool
)

var rootCmd = &cobra.Command{
	Use:   "mutabactl",
	Short: "Freelancer cash-flow answers from the command line",
	Long:  "Query the local books: exchange rates, unified totals, month and year summaries, KPIs and guidance.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		applog.SetDefault(applog.New(applog.Config{
			Level:     applog.ParseLevel(flagLogLevel),
			Component: applog.ComponentCLI,
			Output:    os.Stderr,
		}))
	},
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Never call the rate service; use cached rates only")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

// addReportFlags registers the filter flags shared by the report commands.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagMonth, "month", "m", "", "Month as YYYY-MM (default current month)")
	cmd.Flags().StringVarP(&flagCurrency, "currency", "c", "", "Only this currency")
	cmd.Flags().StringVar(&flagOpening, "opening", "", "Opening balances, e.g. USD:1200.50,ILS:-300")
	cmd.Flags().BoolVar(&flagNoReceivables, "no-receivables", false, "Exclude receivables")
	cmd.Flags().BoolVar(&flagNoProjections, "no-projections", false, "Exclude projected expenses")
}

// books is everything a command needs from the local store.
type books struct {
	cfg       *config.Config
	repo      *storage.SQLiteRepository
	provider  *fx.Provider
	answers   *services.AnswersService
	records   *services.RecordService
	messaging *amqp.Client
}

// openBooks loads configuration and opens the store. Messaging is connected
// only when asked for; a broker failure is logged and leaves it nil.
func openBooks(withMessaging bool) (*books, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if flagDBPath != "" {
		cfg.SQLiteDBPath = flagDBPath
	}
	if flagOffline {
		cfg.FXOffline = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	thresholds, err := config.LoadThresholds(cfg.GuidanceConfig)
	if err != nil {
		return nil, err
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open books: %w", err)
	}
	provider, accessor := cli.NewRateStack(cfg, repo)

	b := &books{
		cfg:      cfg,
		repo:     repo,
		provider: provider,
		answers: services.NewAnswersService(repo, accessor,
			services.WithRules(repo),
			services.WithThresholds(thresholds),
			services.WithCurrencies(cfg.CurrencyList()),
		),
	}

	var publisher services.RefreshPublisher
	if withMessaging && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.Warn("AMQP unavailable, continuing without messaging", applog.FieldError, err)
		} else {
			b.messaging = client
			publisher = client
		}
	}
	b.records = services.NewRecordService(repo, publisher, cfg.CurrencyList())
	return b, nil
}

func (b *books) Close() {
	if b.messaging != nil {
		_ = b.messaging.Close()
	}
	_ = b.repo.Close()
}

// reportFilters turns the report flags into filters and opening balances,
// validated the same way the JSON API validates its query string.
func reportFilters(now time.Time) (core.Filters, aggregate.Opening, error) {
	q := url.Values{}
	if flagMonth != "" {
		q.Set("month", flagMonth)
	}
	if flagCurrency != "" {
		q.Set("currency", flagCurrency)
	}
	q.Set("includeReceivables", strconv.FormatBool(!flagNoReceivables))
	q.Set("includeProjections", strconv.FormatBool(!flagNoProjections))

	f, err := apphttp.ParseFilters(q, now)
	if err != nil {
		return core.Filters{}, nil, err
	}
	opening, err := apphttp.ParseOpening(flagOpening)
	if err != nil {
		return core.Filters{}, nil, err
	}
	return f, opening, nil
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
