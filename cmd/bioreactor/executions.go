package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fentz26/bioreactor/internal/models"
	"github.com/spf13/cobra"
)

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Inspect the plan execution journal",
}

var executionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent plan executions",
	RunE:  runExecutionsList,
}

var executionsShowCmd = &cobra.Command{
	Use:   "show [execution-id]",
	Short: "Show one execution with its step log",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecutionsShow,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List Process Decision Records",
	RunE:  runAudit,
}

var listLimit int

func init() {
	executionsCmd.AddCommand(executionsListCmd, executionsShowCmd)

	executionsListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of executions to show")
	auditCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of records to show")
}

func runExecutionsList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet(fmt.Sprintf("/executions?limit=%d", listLimit))
	if err != nil {
		return err
	}

	var execs []models.Execution
	if err := json.Unmarshal(resp, &execs); err != nil {
		return err
	}

	if len(execs) == 0 {
		fmt.Println("No executions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTEPS\tSTARTED\tNOTE")
	for _, e := range execs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			truncateID(e.ID), e.Status, len(e.Log), len(e.Steps),
			e.StartedAt.Local().Format(time.DateTime), truncate(e.Note, 40))
	}
	w.Flush()
	return nil
}

func runExecutionsShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/executions/" + args[0])
	if err != nil {
		return err
	}

	var e models.Execution
	if err := json.Unmarshal(resp, &e); err != nil {
		return err
	}

	fmt.Printf("ID:       %s\n", e.ID)
	fmt.Printf("Status:   %s\n", e.Status)
	if e.Note != "" {
		fmt.Printf("Note:     %s\n", e.Note)
	}
	fmt.Printf("Started:  %s\n", e.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("Duration: %s\n", e.EndedAt.Sub(e.StartedAt).Round(time.Millisecond))
	if e.Error != "" {
		fmt.Printf("Error:    step %d: %s\n", e.FailedStep, e.Error)
	}
	fmt.Println("\n--- LOG ---")
	printLog(e.Log)
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	resp, err := apiGet(fmt.Sprintf("/audit?limit=%d", listLimit))
	if err != nil {
		return err
	}

	var entries []models.PDREntry
	if err := json.Unmarshal(resp, &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No records found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tEXECUTION\tDETAILS")
	for _, p := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Timestamp.Local().Format(time.DateTime), p.Action, p.Outcome,
			truncateID(p.ExecutionID), truncate(p.Details, 50))
	}
	w.Flush()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
