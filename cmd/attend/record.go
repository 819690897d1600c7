package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/attendsync/attendsync/internal/evidence"
	"github.com/attendsync/attendsync/internal/recognize"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/ui"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	GroupID: "record",
	Short:   "Record check-in or check-out evidence for a worker",
	Long: `Attach an evidence photo to a worker's day.

The first photo of a day (check-in or check-out) counts as one attendance
for the worker. Recording the same event again replaces the photo without
counting twice.

--date accepts YYYY-MM-DD, DD/MM/YYYY or phrases like "today" and
"yesterday". It defaults to today.

Example usage:
  attend record --worker W1 --kind checkIn --image photo.jpg
  attend record -w W1 -k checkOut -i out.jpg --date yesterday`,
	Run: func(cmd *cobra.Command, args []string) {
		workerID, _ := cmd.Flags().GetString("worker")
		dateText, _ := cmd.Flags().GetString("date")
		kindText, _ := cmd.Flags().GetString("kind")
		imagePath, _ := cmd.Flags().GetString("image")

		date, err := resolveDate(dateText, time.Now())
		if err != nil {
			fatal("%v", err)
		}
		kind, err := schema.ParseEventKind(kindText)
		if err != nil {
			fatal("%v", err)
		}
		img, err := os.ReadFile(imagePath)
		if err != nil {
			fatal("failed to read image: %v", err)
		}

		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.close()

		rec, err := evidence.RecordEvidence(ctx, a.session, evidence.Request{
			WorkerID: workerID,
			Date:     date,
			Kind:     kind,
			Image:    img,
		})
		if err != nil {
			a.close()
			fatal("%v", err)
		}

		fmt.Printf("%s Recorded %s for %s on %s (%d/2 events)\n",
			ui.RenderPass("✓"), kind, rec.WorkerID, rec.Date, rec.Events())
		if slot := rec.Slot(kind); slot != nil && !slot.Recognized.Empty() {
			fmt.Println(ui.RenderMuted("  recognized: " + summarize(slot.Recognized)))
		}
		a.finish(ctx)
	},
}

// resolveDate turns user input into a YYYY-MM-DD date. Empty means today.
func resolveDate(text string, now time.Time) (string, error) {
	if text == "" {
		return now.Format(schema.DateLayout), nil
	}
	date := recognize.ParseDate(text, now)
	if date == "" {
		return "", fmt.Errorf("%w: cannot read date %q", schema.ErrValidation, text)
	}
	return date, nil
}

func summarize(f *schema.RecognizedFields) string {
	var s string
	if f.Date != "" {
		s += "date " + f.Date + " "
	}
	if f.Amount != "" {
		s += "amount " + f.Amount + " "
	}
	if s == "" {
		s = fmt.Sprintf("%d characters of text", len(f.Text))
	}
	return s
}

func init() {
	recordCmd.Flags().StringP("worker", "w", "", "Worker ID (required)")
	recordCmd.Flags().StringP("date", "d", "", "Date of the event (default: today)")
	recordCmd.Flags().StringP("kind", "k", "", "Event kind: checkIn or checkOut (required)")
	recordCmd.Flags().StringP("image", "i", "", "Evidence image file (required)")
	_ = recordCmd.MarkFlagRequired("worker")
	_ = recordCmd.MarkFlagRequired("kind")
	_ = recordCmd.MarkFlagRequired("image")

	rootCmd.AddCommand(recordCmd)
}
