package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"force-cleanup/internal/database"
	"force-cleanup/internal/exitcodes"
)

func main() {
	dbPath := flag.String("db", "/var/lib/force-cleanup/history.db", "Path to run history database")
	recent := flag.Int("recent", 0, "Show N most recent runs")
	runID := flag.Int64("run", 0, "Show the steps of run ID")
	outcome := flag.String("outcome", "", "Filter runs by outcome (removed, not_found, rename_failed, delete_failed, refused)")
	action := flag.String("action", "", "Show steps by action (NOT_FOUND, REFUSED, RENAME, DELETE)")
	stats := flag.Bool("stats", false, "Show run statistics")
	days := flag.Int("days", 30, "Number of days for statistics")
	prune := flag.Int("prune", 0, "Delete runs older than N days")
	jsonOutput := flag.Bool("json", false, "Output in JSON format")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Printf("ERROR: History database %s: %v", *dbPath, err)
		os.Exit(exitcodes.RuntimeError)
	}

	db, err := database.NewHistoryDB(*dbPath)
	if err != nil {
		log.Printf("ERROR: Failed to open database %s: %v", *dbPath, err)
		os.Exit(exitcodes.RuntimeError)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("ERROR: Failed to close database: %v", err)
		}
	}()

	switch {
	case *stats:
		err = showStats(db, *days, *jsonOutput)
	case *runID > 0:
		err = showRun(db, *runID, *jsonOutput)
	case *recent > 0:
		err = showRecent(db, *recent, *jsonOutput)
	case *outcome != "":
		err = showByOutcome(db, *outcome, *jsonOutput)
	case *action != "":
		err = showByAction(db, *action, *jsonOutput)
	case *prune > 0:
		err = pruneRuns(db, *prune)
	default:
		flag.Usage()
		fmt.Println("\nExamples:")
		fmt.Println("  force-cleanup-history --recent 10            # Show 10 most recent runs")
		fmt.Println("  force-cleanup-history --run 42               # Show the steps of run 42")
		fmt.Println("  force-cleanup-history --outcome delete_failed")
		fmt.Println("  force-cleanup-history --action RENAME        # Show every rename attempt")
		fmt.Println("  force-cleanup-history --stats --days 7       # Show statistics for a week")
		fmt.Println("  force-cleanup-history --prune 90             # Drop runs older than 90 days")
		db.Close()
		os.Exit(exitcodes.InvalidConfig)
	}

	if err != nil {
		log.Printf("ERROR: %v", err)
		db.Close()
		os.Exit(exitcodes.RuntimeError)
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func showStats(db *database.HistoryDB, days int, jsonOutput bool) error {
	stats, err := db.GetRunStats(days)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	if jsonOutput {
		return printJSON(stats)
	}

	fmt.Printf("Run Statistics (Last %d days)\n", days)
	fmt.Printf("Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Printf("Total Runs:       %d\n", stats.TotalRuns)
	fmt.Printf("Removed:          %d\n", stats.TotalRemoved)
	fmt.Printf("Not Found:        %d\n", stats.TotalNotFound)
	fmt.Printf("Rename Failures:  %d\n", stats.RenameFailures)
	fmt.Printf("Delete Failures:  %d\n", stats.DeleteFailures)
	fmt.Printf("Files Removed:    %d\n", stats.TotalFilesRemoved)
	fmt.Printf("Space Freed:      %s\n", formatBytes(stats.TotalBytesRemoved))

	if len(stats.ByOutcome) > 0 {
		fmt.Println("\nBy Outcome:")
		for outcome, count := range stats.ByOutcome {
			fmt.Printf("  %-15s %d\n", outcome, count)
		}
	}
	return nil
}

func showRun(db *database.HistoryDB, id int64, jsonOutput bool) error {
	run, err := db.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to get run %d: %w", id, err)
	}
	events, err := db.GetRunEvents(id)
	if err != nil {
		return fmt.Errorf("failed to get events of run %d: %w", id, err)
	}

	if jsonOutput {
		return printJSON(struct {
			Run    *database.RunRecord
			Events []database.EventRecord
		}{run, events})
	}

	printRuns([]database.RunRecord{*run})
	fmt.Println()
	printEvents(events)
	return nil
}

func showRecent(db *database.HistoryDB, limit int, jsonOutput bool) error {
	runs, err := db.GetRecentRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to get recent runs: %w", err)
	}
	if jsonOutput {
		return printJSON(runs)
	}
	printRuns(runs)
	return nil
}

func showByOutcome(db *database.HistoryDB, outcome string, jsonOutput bool) error {
	runs, err := db.GetRunsByOutcome(outcome)
	if err != nil {
		return fmt.Errorf("failed to query by outcome: %w", err)
	}
	if jsonOutput {
		return printJSON(runs)
	}
	fmt.Printf("Runs with outcome: %s\n\n", outcome)
	printRuns(runs)
	return nil
}

func showByAction(db *database.HistoryDB, action string, jsonOutput bool) error {
	events, err := db.GetEventsByAction(action)
	if err != nil {
		return fmt.Errorf("failed to query by action: %w", err)
	}
	if jsonOutput {
		return printJSON(events)
	}
	fmt.Printf("Steps with action: %s\n\n", action)
	printEvents(events)
	return nil
}

func pruneRuns(db *database.HistoryDB, days int) error {
	n, err := db.DeleteOldRuns(days)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	if err := db.Vacuum(); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	fmt.Printf("Pruned %d runs older than %d days\n", n, days)
	return nil
}

func printRuns(runs []database.RunRecord) {
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tStarted\tOutcome\tFiles\tSize\tDuration\tTarget")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t-----\t----\t--------\t------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%dms\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Outcome,
			r.FilesRemoved, formatBytes(r.BytesRemoved), r.DurationMs, r.TargetPath)
	}
	_ = w.Flush()
}

func printEvents(events []database.EventRecord) {
	if len(events) == 0 {
		fmt.Println("No steps found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Run\tTimestamp\tAction\tStatus\tPath\tError")
	_, _ = fmt.Fprintln(w, "---\t---------\t------\t------\t----\t-----")

	for _, e := range events {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.RunID, e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Status, e.Path, e.ErrorMessage)
	}
	_ = w.Flush()
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
