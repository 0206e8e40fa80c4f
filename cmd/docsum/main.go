package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "docsum",
	Short: "Local PDF summarization pipeline with entity tagging",
	Long: `docsum extracts text from PDF documents, tags entities, and produces
LLM summaries. Run "docsum serve" to start the server, then use the other
commands against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the docsum version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("docsum version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
