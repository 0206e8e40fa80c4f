package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process <file.pdf>",
	Short: "Upload a PDF and process it asynchronously",
	Long: `Upload a PDF and process it asynchronously.

Examples:
  docsum process report.pdf
  docsum process report.pdf --mode detailed --backend openai
  docsum process report.pdf --no-entities --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		backend, _ := cmd.Flags().GetString("backend")
		maxPages, _ := cmd.Flags().GetInt("max-pages")
		noEntities, _ := cmd.Flags().GetBool("no-entities")
		noTables, _ := cmd.Flags().GetBool("no-tables")
		wait, _ := cmd.Flags().GetBool("wait")

		ctx := cmd.Context()
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s...", args[0])
		resp, err := client.postFile(ctx, "/api/upload", args[0], nil)
		if err != nil {
			return err
		}
		var uploaded struct {
			DocumentID string `json:"document_id"`
			Pages      int    `json:"pages"`
		}
		if err := decodeJSON(resp, &uploaded); err != nil {
			return err
		}
		printStatus("Document", "%s (%d pages)", uploaded.DocumentID, uploaded.Pages)

		req := map[string]any{
			"document_id": uploaded.DocumentID,
		}
		if mode != "" {
			req["summary_mode"] = mode
		}
		if backend != "" {
			req["backend"] = backend
		}
		if maxPages > 0 {
			req["max_pages"] = maxPages
		}
		if noEntities {
			req["extract_entities"] = false
		}
		if noTables {
			req["extract_tables"] = false
		}

		resp, err = client.post(ctx, "/api/process", req)
		if err != nil {
			return err
		}
		var started struct {
			JobID string `json:"job_id"`
		}
		if err := decodeJSON(resp, &started); err != nil {
			return err
		}
		printSuccess("Started job %s", started.JobID)

		if !wait {
			fmt.Printf("%s\n", started.JobID)
			return nil
		}
		return pollJob(ctx, client, started.JobID)
	},
}

func pollJob(ctx context.Context, client *apiClient, id string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		resp, err := client.get(ctx, "/api/status/"+id)
		if err != nil {
			return err
		}
		var status struct {
			Status string `json:"status"`
			Result any    `json:"result"`
			Error  any    `json:"error"`
		}
		if err := decodeJSON(resp, &status); err != nil {
			return err
		}

		switch status.Status {
		case "pending", "running":
			continue
		case "completed":
			printSuccess("Job %s completed", id)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status.Result)
		case "cancelled":
			printWarning("Job %s was cancelled", id)
			return nil
		default:
			return fmt.Errorf("job %s failed: %v", id, status.Error)
		}
	}
}

func init() {
	processCmd.Flags().String("mode", "", "summary mode: brief, detailed, or bullets")
	processCmd.Flags().String("backend", "", "model backend: openai or ollama")
	processCmd.Flags().Int("max-pages", 0, "pages to process (1-10)")
	processCmd.Flags().Bool("no-entities", false, "skip entity extraction")
	processCmd.Flags().Bool("no-tables", false, "skip table extraction")
	processCmd.Flags().Bool("wait", false, "poll until the job finishes and print the result")
}

// --- summarize ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file.pdf>",
	Short: "Summarize a PDF synchronously and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		backend, _ := cmd.Flags().GetString("backend")
		maxPages, _ := cmd.Flags().GetString("max-pages")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Summarizing %s...", args[0])
		resp, err := client.postFile(cmd.Context(), "/api/summarize-sync", args[0], map[string]string{
			"summary_mode": mode,
			"backend":      backend,
			"max_pages":    maxPages,
		})
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	summarizeCmd.Flags().String("mode", "", "summary mode: brief, detailed, or bullets")
	summarizeCmd.Flags().String("backend", "", "model backend: openai or ollama")
	summarizeCmd.Flags().String("max-pages", "", "pages to process (1-10)")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status, progress, and result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/status/"+args[0])
		if err != nil {
			return err
		}

		var status any
		if err := decodeJSON(resp, &status); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List tracked jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/api/jobs"
		if statusFilter != "" {
			path += "?status=" + statusFilter
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var list struct {
			Jobs []struct {
				JobID     string `json:"job_id"`
				Status    string `json:"status"`
				Filename  string `json:"filename"`
				CreatedAt string `json:"created_at"`
			} `json:"jobs"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list.Jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}

		for _, j := range list.Jobs {
			name := j.Filename
			if len(name) > 40 {
				name = name[:40] + "..."
			}
			fmt.Printf("%s  %-10s  %s  %s\n",
				colorize(ansiCyan, j.JobID[:8]),
				statusColor(j.Status),
				j.CreatedAt,
				name,
			)
		}
		return nil
	},
}

func init() {
	jobsCmd.Flags().String("status", "", "filter by status (pending, running, completed, failed, cancelled)")
}

// --- cancel ---

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/jobs/"+args[0]+"/cancel", nil)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cancellation requested for %s", args[0])
		return nil
	},
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/jobs/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted job %s", args[0])
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived runs from past sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var list struct {
			Runs []struct {
				JobID      string `json:"job_id"`
				Status     string `json:"status"`
				Summary    string `json:"summary"`
				FinishedAt string `json:"finished_at"`
			} `json:"runs"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list.Runs) == 0 {
			fmt.Println("No archived runs found.")
			return nil
		}

		for _, r := range list.Runs {
			summary := r.Summary
			if len(summary) > 80 {
				summary = summary[:80] + "..."
			}
			fmt.Printf("%s  %-10s  %s  %s\n",
				colorize(ansiCyan, r.JobID[:8]),
				statusColor(r.Status),
				r.FinishedAt,
				summary,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
}
