package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mutaba/internal/services"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load records from JSON files into the books",
}

var importEventsCmd = &cobra.Command{
	Use:   "events FILE",
	Short: "Upsert money events from a JSON array (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInput(args[0], func(r io.Reader) error {
			events, err := services.ReadEvents(r)
			if err != nil {
				return err
			}
			b, err := openBooks(true)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.records.ImportEvents(commandContext(cmd), events); err != nil {
				return err
			}
			fmt.Printf("Imported %d events\n", len(events))
			return nil
		})
	},
}

var importRulesCmd = &cobra.Command{
	Use:   "rules FILE",
	Short: "Upsert recurring expense rules from a JSON array (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInput(args[0], func(r io.Reader) error {
			rules, err := services.ReadRules(r)
			if err != nil {
				return err
			}
			b, err := openBooks(true)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.records.ImportRules(commandContext(cmd), rules); err != nil {
				return err
			}
			fmt.Printf("Imported %d rules\n", len(rules))
			return nil
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Manage money events",
}

var deleteEventCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Soft-delete an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBooks(false)
		if err != nil {
			return err
		}
		defer b.Close()
		return b.records.DeleteEvent(commandContext(cmd), args[0])
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage recurring expense rules",
}

func pauseCommand(use, short string, paused bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBooks(false)
			if err != nil {
				return err
			}
			defer b.Close()
			return b.records.PauseRule(commandContext(cmd), args[0], paused)
		},
	}
}

func init() {
	importCmd.AddCommand(importEventsCmd, importRulesCmd)
	eventsCmd.AddCommand(deleteEventCmd)
	rulesCmd.AddCommand(
		pauseCommand("pause", "Stop projecting a rule", true),
		pauseCommand("resume", "Resume projecting a rule", false),
	)
	rootCmd.AddCommand(importCmd, eventsCmd, rulesCmd)
}

// withInput opens path, or stdin for "-", and passes it to fn.
func withInput(path string, fn func(io.Reader) error) error {
	if path == "-" {
		return fn(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}
