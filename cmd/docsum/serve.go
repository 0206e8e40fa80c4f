package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/ilyakh/docsum/internal/api"
	"github.com/ilyakh/docsum/internal/config"
	"github.com/ilyakh/docsum/internal/docstore"
	"github.com/ilyakh/docsum/internal/entity"
	"github.com/ilyakh/docsum/internal/job"
	"github.com/ilyakh/docsum/internal/llm"
	"github.com/ilyakh/docsum/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docsum server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpFlag, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), mcpFlag)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func runServer(ctx context.Context, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "docsum version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Warn early when the default backend is plainly unusable; jobs would
	// only surface it as stage failures later.
	switch cfg.LLM.DefaultBackend {
	case "openai":
		if cfg.LLM.OpenAIAPIKey == "" {
			printWarning("default backend is openai but no API key is configured")
		}
	case "ollama":
		if !llm.NewOllama(cfg.LLM.OllamaBaseURL, cfg.LLM.OllamaModel).IsRunning(ctx) {
			printWarning("Ollama is not reachable at %s", cfg.LLM.OllamaBaseURL)
		}
	}

	// Open the document store.
	docs, err := docstore.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	defer func() {
		if err := docs.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing document store: %v\n", err)
		}
	}()

	// Build the pipeline and scheduler.
	store := job.NewStore()
	factory := func(backend string) (llm.Summarizer, error) {
		return llm.New(backend, llm.Options{
			OpenAIAPIKey:  cfg.LLM.OpenAIAPIKey,
			OpenAIBaseURL: cfg.LLM.OpenAIBaseURL,
			OpenAIModel:   cfg.LLM.OpenAIModel,
			OllamaBaseURL: cfg.LLM.OllamaBaseURL,
			OllamaModel:   cfg.LLM.OllamaModel,
		})
	}
	stages := pipeline.StandardStages(pipeline.Deps{
		Entities:   entity.New(),
		Summarizer: factory,
	})
	scheduler := pipeline.NewScheduler(ctx, store, stages, pipeline.AssembleResult, cfg.Jobs.MaxConcurrent, archiveRun(docs))

	deps := api.Deps{
		Jobs:      store,
		Scheduler: scheduler,
		Docs:      docs,
		UploadDir: cfg.Storage.UploadDir,
		Defaults: api.Defaults{
			SummaryMode: "brief",
			Backend:     cfg.LLM.DefaultBackend,
			MaxPages:    cfg.Extract.MaxPages,
			Tables:      cfg.Extract.Tables,
		},
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	// MCP tools over stdio, sharing the scheduler and store.
	if withMCP {
		stdioSrv := mcpserver.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "docsum listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// archiveRun records terminal jobs in the document store so history
// survives restarts. Archive failures are logged, never propagated; the
// in-memory job record is already final.
func archiveRun(docs *docstore.Store) pipeline.TerminalHook {
	return func(j job.Job) {
		run := docstore.Run{
			ID:         uuid.New().String(),
			JobID:      j.ID,
			DocumentID: j.Input.DocumentID,
			Status:     string(j.Status),
			CreatedAt:  j.CreatedAt,
			FinishedAt: j.UpdatedAt,
		}

		if res, ok := j.FinalResult.(pipeline.Result); ok {
			run.Summary = res.Summary
			if len(res.Entities) > 0 {
				if b, err := json.Marshal(res.Entities); err == nil {
					run.EntitiesJSON = string(b)
				}
			}
			if b, err := json.Marshal(res.Metadata); err == nil {
				run.MetadataJSON = string(b)
			}
		}
		if j.Err != nil {
			run.Error = j.Err.Error()
		}

		if err := docs.ArchiveRun(run); err != nil {
			slog.Error("archiving run", "job_id", j.ID, "error", err)
		}
	}
}
