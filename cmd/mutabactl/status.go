package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"mutaba/internal/cli"
	"mutaba/internal/fx"
	"mutaba/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Schema version and the contents of the rate cache",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	b, err := openBooks(false)
	if err != nil {
		return err
	}
	defer b.Close()

	version, dirty, err := storage.SchemaVersion(b.cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	doc, err := b.repo.RateCache().All(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("read rate cache: %w", err)
	}

	if flagJSON {
		return printJSON(map[string]any{
			"database":      b.cfg.SQLiteDBPath,
			"schemaVersion": version,
			"dirty":         dirty,
			"rates":         doc,
		})
	}

	fmt.Printf("Database: %s (schema v%d", b.cfg.SQLiteDBPath, version)
	if dirty {
		fmt.Print(", DIRTY")
	}
	fmt.Println(")")

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now()
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		e := doc[k]
		state := "fresh"
		if fx.IsStale(e, b.cfg.FXStaleAfter, now) {
			state = "stale"
		}
		rows = append(rows, []string{
			k,
			fmt.Sprintf("%.4f", e.Rate),
			e.Date.String(),
			e.FetchedAt.Local().Format(time.DateTime),
			state,
		})
	}
	if len(rows) == 0 {
		fmt.Println("Rate cache is empty. Run `mutabactl refresh --local` to fill it.")
		return nil
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "RATE CACHE",
		Headers: []string{"Pair", "Rate", "Date", "Fetched", "State"},
		Rows:    rows,
	}))
	return nil
}
