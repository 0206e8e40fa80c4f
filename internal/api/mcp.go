package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ilyakh/docsum/internal/job"
)

// NewMCPServer exposes the summarization pipeline as MCP tools so model
// clients can drive it directly. It shares the same scheduler and store as
// the HTTP layer; jobs started here are visible at /api/jobs and vice versa.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"docsum",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("docsum — local PDF summarization pipeline with entity tagging."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("summarize_document",
			mcp.WithDescription("Run the full extract/tag/summarize pipeline on a local PDF and return the result."),
			mcp.WithString("path", mcp.Description("Path to the PDF file"), mcp.Required()),
			mcp.WithString("summary_mode", mcp.Description("Summary style: brief, detailed, or bullets (default brief)")),
			mcp.WithString("backend", mcp.Description("Model backend: openai or ollama (default from server config)")),
			mcp.WithNumber("max_pages", mcp.Description("Pages to process, 1-10 (default from server config)")),
		),
		mcpSummarizeDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("job_status",
			mcp.WithDescription("Look up the status, progress, and result of a processing job."),
			mcp.WithString("job_id", mcp.Description("Job identifier"), mcp.Required()),
		),
		mcpJobStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_jobs",
			mcp.WithDescription("List tracked processing jobs, newest first."),
			mcp.WithString("status", mcp.Description("Optional status filter (pending, running, completed, failed, cancelled)")),
		),
		mcpListJobs(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"docsum://history",
			"Processing History",
			mcp.WithResourceDescription("Recent archived pipeline runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpSummarizeDocument(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}
		if _, err := os.Stat(path); err != nil {
			return mcpError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
		}

		cfg, err := deps.buildConfig(processRequest{
			SummaryMode: req.GetString("summary_mode", ""),
			Backend:     req.GetString("backend", ""),
			MaxPages:    req.GetInt("max_pages", 0),
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}

		j, err := deps.Scheduler.RunSync(ctx, job.InputRef{Path: path, Filename: path}, cfg)
		if err != nil {
			return mcpError(fmt.Sprintf("run failed: %v", err)), nil
		}
		if j.Status != job.StatusCompleted {
			return mcpError(fmt.Sprintf("job %s finished %s: %v", j.ID, j.Status, j.Err)), nil
		}

		b, err := json.Marshal(j.FinalResult)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpJobStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		j, err := deps.Jobs.Get(id)
		if err != nil {
			return mcpError(fmt.Sprintf("job %s not found", id)), nil
		}

		b, err := json.Marshal(job.Project(j))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListJobs(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := req.GetString("status", "")

		var summaries []job.Summary
		for _, j := range deps.Jobs.List() {
			if status != "" && j.Status != job.Status(status) {
				continue
			}
			summaries = append(summaries, job.ProjectSummary(j))
		}
		if len(summaries) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal jobs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceHistory(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Docs.ListRuns(20)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		type runSummary struct {
			JobID      string `json:"job_id"`
			DocumentID string `json:"document_id,omitempty"`
			Status     string `json:"status"`
			Summary    string `json:"summary,omitempty"`
			FinishedAt string `json:"finished_at"`
		}

		summaries := make([]runSummary, len(runs))
		for i, r := range runs {
			summaries[i] = runSummary{
				JobID:      r.JobID,
				DocumentID: r.DocumentID,
				Status:     r.Status,
				Summary:    r.Summary,
				FinishedAt: r.FinishedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
