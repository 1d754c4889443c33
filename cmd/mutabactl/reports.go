package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mutaba/internal/cli"
	"mutaba/internal/core"
	apphttp "mutaba/internal/http"
)

var (
	flagDays    bool
	flagUnifyTo string
	flagFrom    string
	flagTo      string
)

var monthCmd = &cobra.Command{
	Use:   "month",
	Short: "Month summary per currency",
	Args:  cobra.NoArgs,
	RunE:  runMonth,
}

var yearCmd = &cobra.Command{
	Use:   "year [YEAR]",
	Short: "Twelve-month summary per currency",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runYear,
}

var totalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Paid, unpaid and expenses per currency over a date range",
	Args:  cobra.NoArgs,
	RunE:  runTotals,
}

var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Will-make-it forecast per currency",
	Args:  cobra.NoArgs,
	RunE:  runKPI,
}

var guidanceCmd = &cobra.Command{
	Use:   "guidance",
	Short: "Ranked advice for the month",
	Args:  cobra.NoArgs,
	RunE:  runGuidance,
}

func init() {
	for _, cmd := range []*cobra.Command{monthCmd, yearCmd, totalsCmd, kpiCmd, guidanceCmd} {
		addReportFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	monthCmd.Flags().BoolVar(&flagDays, "days", false, "Also list every day with activity")
	totalsCmd.Flags().StringVar(&flagFrom, "from", "", "First day as YYYY-MM-DD (default first day of --month)")
	totalsCmd.Flags().StringVar(&flagTo, "to", "", "Last day as YYYY-MM-DD (default last day of --month)")
	kpiCmd.Flags().StringVar(&flagUnifyTo, "unify-to", "", "Also show the totals converted into this currency")
}

func runMonth(cmd *cobra.Command, _ []string) error {
	f, opening, err := reportFilters(time.Now())
	if err != nil {
		return err
	}
	b, err := openBooks(false)
	if err != nil {
		return err
	}
	defer b.Close()

	report, err := b.answers.Month(commandContext(cmd), f, opening)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(report)
	}

	rows := make([][]string, 0, len(report.Summary.Currencies))
	for _, cur := range b.answers.Currencies() {
		t, ok := report.Summary.Currencies[cur]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			string(cur),
			cli.FormatAmount(t.TotalInflowMinor, cur),
			cli.FormatAmount(t.TotalOutflowMinor, cur),
			cli.FormatSigned(t.NetMinor, cur),
			cli.FormatAmount(t.AwaitingMinor, cur),
			cli.FormatAmount(t.ProjectedOutflowMinor, cur),
			cli.FormatAmount(t.ClosingBalanceMinor, cur),
			dayOrDash(report.Totals[cur].LastPaymentAt),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "MONTH " + report.Summary.Month.String(),
		Headers: []string{"Currency", "In", "Out", "Net", "Awaiting", "Projected out", "Closing", "Last paid"},
		Rows:    rows,
	}))

	if !flagDays {
		return nil
	}
	var dayRows [][]string
	for _, day := range report.Days {
		if len(day.Events) == 0 {
			continue
		}
		for _, cur := range b.answers.Currencies() {
			flow, ok := day.Currencies[cur]
			if !ok || (flow.InflowMinor == 0 && flow.OutflowMinor == 0) {
				continue
			}
			dayRows = append(dayRows, []string{
				day.Date.String(),
				string(cur),
				cli.FormatAmount(flow.InflowMinor, cur),
				cli.FormatAmount(flow.OutflowMinor, cur),
				cli.FormatAmount(flow.RunningBalanceMinor, cur),
				string(day.Confidence),
			})
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "DAYS",
		Headers: []string{"Date", "Currency", "In", "Out", "Balance", "Confidence"},
		Rows:    dayRows,
	}))
	return nil
}

func runYear(cmd *cobra.Command, args []string) error {
	f, opening, err := reportFilters(time.Now())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		y, err := strconv.Atoi(args[0])
		if err != nil || y < 1970 || y > 9999 {
			return fmt.Errorf("invalid year %q", args[0])
		}
		f.Year = y
	}
	b, err := openBooks(false)
	if err != nil {
		return err
	}
	defer b.Close()

	summary, err := b.answers.Year(commandContext(cmd), f, opening)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(summary)
	}

	var rows [][]string
	for _, cur := range b.answers.Currencies() {
		yt, ok := summary.Currencies[cur]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			string(cur),
			cli.FormatAmount(yt.TotalInflowMinor, cur),
			cli.FormatAmount(yt.TotalOutflowMinor, cur),
			cli.FormatSigned(yt.NetMinor, cur),
			cli.FormatAmount(yt.AvgAwaitingMinor, cur),
			fmt.Sprintf("%d%%", yt.RetainerStabilityPercent),
			monthOrDash(yt.BestMonth),
			monthOrDash(yt.WorstMonth),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("YEAR %d", summary.Year),
		Headers: []string{"Currency", "In", "Out", "Net", "Avg awaiting", "Retainers", "Best", "Worst"},
		Rows:    rows,
	}))

	var monthRows [][]string
	for _, m := range summary.Months {
		for _, cur := range b.answers.Currencies() {
			t, ok := m.Currencies[cur]
			if !ok {
				continue
			}
			monthRows = append(monthRows, []string{
				m.Month.String(),
				string(cur),
				cli.FormatSigned(t.NetMinor, cur),
				cli.FormatAmount(t.ClosingBalanceMinor, cur),
			})
		}
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Month", "Currency", "Net", "Closing"},
		Rows:    monthRows,
	}))
	return nil
}

func runTotals(cmd *cobra.Command, _ []string) error {
	f, _, err := reportFilters(time.Now())
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("from", flagFrom)
	q.Set("to", flagTo)
	dates, err := apphttp.ParseRange(q, f.Month)
	if err != nil {
		return err
	}
	b, err := openBooks(false)
	if err != nil {
		return err
	}
	defer b.Close()

	report, err := b.answers.Totals(commandContext(cmd), dates, f)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(report)
	}

	var rows [][]string
	for _, cur := range b.answers.Currencies() {
		t, ok := report.Currencies[cur]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			string(cur),
			cli.FormatAmount(t.PaidIncomeMinor, cur),
			cli.FormatAmount(t.UnpaidIncomeMinor, cur),
			cli.FormatAmount(t.ExpensesMinor, cur),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "TOTALS " + report.Range.String(),
		Headers: []string{"Currency", "Paid", "Unpaid", "Expenses"},
		Rows:    rows,
	}))
	return nil
}

func runKPI(cmd *cobra.Command, _ []string) error {
	f, opening, err := reportFilters(time.Now())
	if err != nil {
		return err
	}
	var target core.Currency
	if flagUnifyTo != "" {
		if target, err = core.ParseCurrency(flagUnifyTo); err != nil {
			return err
		}
	}
	b, err := openBooks(false)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx := commandContext(cmd)
	bundles, err := b.answers.KPIs(ctx, f, opening)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, cur := range b.answers.Currencies() {
		k, ok := bundles[cur]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			string(cur),
			cli.FormatSigned(k.WillMakeItMinor, cur),
			cli.FormatAmount(k.CashOnHandMinor, cur),
			cli.FormatAmount(k.ComingMinor, cur),
			cli.FormatAmount(k.LeakingMinor, cur),
			cli.FormatSigned(k.NetForecastMinor, cur),
		})
	}

	if target != "" {
		unified := b.answers.UnifyKPIs(ctx, bundles, target)
		if flagJSON {
			return printJSON(map[string]any{"month": f.Month, "currencies": bundles, "unified": unified})
		}
		rows = append(rows, []string{
			"= " + string(target),
			cli.FormatOptionalAmount(unified.WillMakeItMinor, target),
			cli.FormatOptionalAmount(unified.CashOnHandMinor, target),
			cli.FormatOptionalAmount(unified.ComingMinor, target),
			cli.FormatOptionalAmount(unified.LeakingMinor, target),
			cli.FormatOptionalAmount(unified.NetForecastMinor, target),
		})
	} else if flagJSON {
		return printJSON(map[string]any{"month": f.Month, "currencies": bundles})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "KPIS " + f.Month.String(),
		Headers: []string{"Currency", "Will make it", "Cash", "Coming", "Leaking", "Net forecast"},
		Rows:    rows,
	}))
	return nil
}

func runGuidance(cmd *cobra.Command, _ []string) error {
	f, opening, err := reportFilters(time.Now())
	if err != nil {
		return err
	}
	b, err := openBooks(false)
	if err != nil {
		return err
	}
	defer b.Close()

	items, err := b.answers.Guidance(commandContext(cmd), f, opening)
	if err != nil {
		return err
	}
	if flagJSON {
		if items == nil {
			items = []core.GuidanceItem{}
		}
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("Nothing needs attention for " + f.Month.String() + ".")
		return nil
	}

	fmt.Println(cli.RenderTitle("GUIDANCE " + f.Month.String()))
	for _, item := range items {
		fmt.Printf("%s  %s  (%s)\n", cli.RenderSeverity(item.Severity), item.Title,
			cli.FormatAmount(item.ImpactMinor, item.ImpactCurrency))
		fmt.Printf("    %s\n", item.Description)
		if item.PrimaryAction != nil {
			fmt.Printf("    -> %s\n", item.PrimaryAction.Label)
		}
	}
	return nil
}

func monthOrDash(m *core.YearMonth) string {
	if m == nil {
		return "-"
	}
	return m.String()
}

func dayOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return core.DateOf(t.UTC()).String()
}
