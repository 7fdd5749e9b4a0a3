package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/traylinx/perfgov/internal/config"
	"github.com/traylinx/perfgov/internal/journal"
)

func handleHistoryCommand(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Configure File Path")
	limit := fs.Int("limit", 20, "Number of transitions to show")
	format := fs.String("format", "table", "Output format (table/json)")
	_ = fs.Parse(args)

	cfg, err := config.LoadConfigOptional(*configPath, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Journal.Enabled {
		fmt.Println("Journal is disabled in the configuration.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	j, err := journal.Open(ctx, cfg.JournalConfig())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	entries, err := j.History(ctx, *limit)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := printHistory(os.Stdout, entries, *format); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func printHistory(w io.Writer, entries []journal.Entry, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No tier transitions recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-20s %-9s %-9s %-9s %-10s %7s  %s\n", "TIME", "FROM", "TO", "DIRECTION", "REASON", "RATE", "DELIVERY")
	for _, e := range entries {
		fmt.Fprintf(w, "%-20s %-9s %-9s %-9s %-10s %7.1f  %s\n",
			e.At.Format("2006-01-02 15:04:05"), e.From, e.To, e.Direction, e.Reason, e.Rate, e.Delivery)
	}
	return nil
}
