package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/ui"
)

var evidenceCmd = &cobra.Command{
	Use:     "evidence",
	GroupID: "record",
	Short:   "List recorded evidence",
	Long: `List evidence records, newest day first.

Example usage:
  attend evidence
  attend evidence --worker W1
  attend evidence --date 2024-01-10 --json`,
	Run: func(cmd *cobra.Command, args []string) {
		workerID, _ := cmd.Flags().GetString("worker")
		date, _ := cmd.Flags().GetString("date")
		jsonOut, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.close()

		recs, err := a.store.EvidenceRecords(ctx)
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		recs = filterEvidence(recs, workerID, date)

		if jsonOut {
			for i := range recs {
				stripImages(&recs[i])
			}
			printJSON(recs)
			return
		}
		if len(recs) == 0 {
			fmt.Println("No evidence recorded")
			return
		}
		fmt.Println(ui.Table([]string{"Date", "Worker", "Check-in", "Check-out"}, evidenceRows(recs)))
		fmt.Println(ui.SyncIndicator(a.driver.Status()))
	},
}

// filterEvidence keeps records matching the non-empty filters, newest first.
func filterEvidence(recs []schema.EvidenceRecord, workerID, date string) []schema.EvidenceRecord {
	out := recs[:0]
	for _, r := range recs {
		if workerID != "" && r.WorkerID != workerID {
			continue
		}
		if date != "" && r.Date != date {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}

func stripImages(r *schema.EvidenceRecord) {
	for _, s := range []*schema.Slot{r.CheckIn, r.CheckOut} {
		if s != nil {
			s.Image = ""
		}
	}
}

func evidenceRows(recs []schema.EvidenceRecord) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{r.Date, r.WorkerID, slotCell(r.CheckIn), slotCell(r.CheckOut)})
	}
	return rows
}

func slotCell(s *schema.Slot) string {
	if s == nil {
		return "-"
	}
	return "✓ " + s.RecordedAt.Local().Format("15:04")
}

func init() {
	evidenceCmd.Flags().StringP("worker", "w", "", "Only this worker")
	evidenceCmd.Flags().StringP("date", "d", "", "Only this date (YYYY-MM-DD)")
	evidenceCmd.Flags().Bool("json", false, "Output JSON without images")

	rootCmd.AddCommand(evidenceCmd)
}
