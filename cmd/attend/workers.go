package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/attendsync/attendsync/internal/evidence"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/ui"
)

var workersCmd = &cobra.Command{
	Use:     "workers",
	GroupID: "record",
	Short:   "List and manage workers",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOut, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.close()

		workers, err := a.store.Workers(ctx)
		if err != nil {
			a.close()
			fatal("%v", err)
		}

		if jsonOut {
			printJSON(workers)
			return
		}
		if len(workers) == 0 {
			fmt.Println("No workers. Add one with: attend workers add --name <name>")
			return
		}
		fmt.Println(ui.Table(workerHeaders, workerRows(workers)))
		fmt.Println(ui.SyncIndicator(a.driver.Status()))
	},
}

var workersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a worker",
	Long: `Add a worker to the roster.

Example usage:
  attend workers add --name "Ana Pérez" --employee-id 12345678
  attend workers add --id W9 --name "Luis Gómez"`,
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetString("id")
		name, _ := cmd.Flags().GetString("name")
		employeeID, _ := cmd.Flags().GetString("employee-id")

		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.close()

		w, err := evidence.AddWorker(ctx, a.session, name, employeeID, id)
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		fmt.Printf("%s Added worker %s (%s)\n", ui.RenderPass("✓"), ui.RenderAccent(w.ID), w.Name)
		a.finish(ctx)
	},
}

var workersUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Rename a worker or change the employee ID",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		employeeID, _ := cmd.Flags().GetString("employee-id")

		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.close()

		current, err := a.store.GetWorker(ctx, args[0])
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		if !cmd.Flags().Changed("name") {
			name = current.Name
		}
		if !cmd.Flags().Changed("employee-id") {
			employeeID = current.EmployeeID
		}

		w, err := evidence.UpdateWorker(ctx, a.session, args[0], name, employeeID)
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		fmt.Printf("%s Updated worker %s (%s)\n", ui.RenderPass("✓"), ui.RenderAccent(w.ID), w.Name)
		a.finish(ctx)
	},
}

var workerHeaders = []string{"ID", "Name", "Employee ID", "Assists", "Last"}

func workerRows(workers []schema.Worker) [][]string {
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		last := "-"
		if w.LastAssistance != nil {
			last = *w.LastAssistance
		}
		rows = append(rows, []string{w.ID, w.Name, w.EmployeeID, strconv.Itoa(w.TotalAssists), last})
	}
	return rows
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("failed to encode output: %v", err)
	}
}

func init() {
	workersCmd.Flags().Bool("json", false, "Output JSON")

	workersAddCmd.Flags().String("id", "", "Worker ID (default: generated)")
	workersAddCmd.Flags().String("name", "", "Full name (required)")
	workersAddCmd.Flags().String("employee-id", "", "National or employee ID")
	_ = workersAddCmd.MarkFlagRequired("name")

	workersUpdateCmd.Flags().String("name", "", "New name")
	workersUpdateCmd.Flags().String("employee-id", "", "New employee ID")

	workersCmd.AddCommand(workersAddCmd, workersUpdateCmd)
	rootCmd.AddCommand(workersCmd)
}
