package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mutaba/internal/cli"
	"mutaba/internal/core"
	"mutaba/internal/fx"
	apphttp "mutaba/internal/http"
	"mutaba/internal/worker"
)

var (
	flagTarget string
	flagLocal  bool
)

var fxCmd = &cobra.Command{
	Use:   "fx",
	Short: "Exchange rates of every enabled currency into a target",
	Args:  cobra.NoArgs,
	RunE:  runFX,
}

var unifyCmd = &cobra.Command{
	Use:     "unify CUR:AMOUNT...",
	Short:   "Combine amounts in several currencies into one",
	Example: "  mutabactl unify --target ILS USD:1200.50 EUR:300",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runUnify,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [PAIR...]",
	Short: "Refresh exchange rates (default: the configured FX_PAIRS)",
	Long: "Ask the fx-worker to refetch pairs over AMQP. With --local, or when no broker\n" +
		"is configured, fetch them here and write them to the shared rate cache.",
	Example: "  mutabactl refresh USD-ILS EUR-ILS",
	RunE:    runRefresh,
}

func init() {
	fxCmd.Flags().StringVarP(&flagTarget, "target", "t", "", "Target currency (default first enabled currency)")
	unifyCmd.Flags().StringVarP(&flagTarget, "target", "t", "", "Target currency (required)")
	_ = unifyCmd.MarkFlagRequired("target")
	refreshCmd.Flags().BoolVar(&flagLocal, "local", false, "Fetch in this process instead of asking the worker")
	rootCmd.AddCommand(fxCmd, unifyCmd, refreshCmd)
}

func runFX(cmd *cobra.Command, _ []string) error {
	b, err := openBooks(false)
	if err != nil {
		return err
	}
	defer b.Close()

	target := b.answers.Currencies()[0]
	if flagTarget != "" {
		if target, err = core.ParseCurrency(flagTarget); err != nil {
			return err
		}
	}

	results := b.answers.Rates(commandContext(cmd), target)
	views := make(map[core.Currency]fx.ResultView, len(results))
	for cur, r := range results {
		views[cur] = fx.View(r)
	}
	if flagJSON {
		return printJSON(map[string]any{"target": target, "rates": views})
	}

	var rows [][]string
	for _, cur := range b.answers.Currencies() {
		v, ok := views[cur]
		if !ok {
			continue
		}
		rows = append(rows, rateRow(v))
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "RATES INTO " + string(target),
		Headers: []string{"Pair", "Rate", "Source", "Date", "Age"},
		Rows:    rows,
	}))
	return nil
}

func rateRow(v fx.ResultView) []string {
	rate, date, age := "n/a", "-", "-"
	if v.Rate != nil {
		rate = fmt.Sprintf("%.4f", *v.Rate)
	}
	if v.Date != "" {
		date = v.Date
	}
	if v.Source == fx.SourceCached {
		age = (time.Duration(v.AgeSeconds) * time.Second).Round(time.Minute).String()
	}
	return []string{fx.PairKey(v.Base, v.Quote), rate, string(v.Source), date, age}
}

func runUnify(cmd *cobra.Command, args []string) error {
	target, err := core.ParseCurrency(flagTarget)
	if err != nil {
		return err
	}
	// Amount arguments share the opening-balance syntax.
	opening, err := apphttp.ParseOpening(strings.Join(args, ","))
	if err != nil {
		return err
	}
	b, err := openBooks(false)
	if err != nil {
		return err
	}
	defer b.Close()

	res := b.answers.Unify(commandContext(cmd), opening, target)
	if flagJSON {
		return printJSON(res)
	}

	var rows [][]string
	for _, cur := range b.answers.Currencies() {
		if v, ok := res.Rates[cur]; ok {
			rows = append(rows, rateRow(v))
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Pair", "Rate", "Source", "Date", "Age"},
		Rows:    rows,
	}))
	if res.TotalMinor == nil {
		return fmt.Errorf("cannot unify into %s: a needed rate is unavailable", target)
	}
	fmt.Printf("Total: %s\n", cli.FormatAmount(*res.TotalMinor, target))
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	pairs, err := fx.ParsePairs(strings.Join(args, ","))
	if err != nil {
		return err
	}
	b, err := openBooks(!flagLocal)
	if err != nil {
		return err
	}
	defer b.Close()
	if len(pairs) == 0 {
		pairs = b.cfg.PairList()
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no pairs given and FX_PAIRS is empty")
	}

	ctx := commandContext(cmd)
	if b.messaging != nil {
		keys := make([]string, len(pairs))
		for i, p := range pairs {
			keys[i] = p.String()
		}
		if err := b.messaging.PublishRefresh(ctx, keys...); err != nil {
			return fmt.Errorf("request refresh: %w", err)
		}
		fmt.Printf("Refresh requested for %s\n", strings.Join(keys, ", "))
		return nil
	}

	report := worker.NewRateRefreshWorker(b.provider, pairs, b.cfg.FXRefreshInterval).Refresh(ctx, pairs)
	if flagJSON {
		return printJSON(report)
	}
	fmt.Printf("Refreshed %d pairs: %d live, %d cached, %d unavailable\n",
		report.Total(), report.Live, report.Cached, report.Unavailable)
	if report.Live == 0 {
		return fmt.Errorf("no live rate obtained")
	}
	return nil
}
