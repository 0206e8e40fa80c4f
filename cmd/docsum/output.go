package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

// stderrTTY is fixed at startup; colored output goes to a terminal only.
var stderrTTY = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

func colorize(code, s string) string {
	if noColor || !stderrTTY {
		return s
	}
	return code + s + ansiReset
}

// emit writes one tagged status line to stderr, keeping stdout clean for
// machine-readable output.
func emit(code, tag, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize(code, tag), fmt.Sprintf(format, args...))
}

func printSuccess(format string, args ...any) { emit(ansiGreen, "ok:", format, args...) }
func printWarning(format string, args ...any) { emit(ansiYellow, "warning:", format, args...) }
func printStep(format string, args ...any)    { emit(ansiCyan, "-->", format, args...) }

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "    %s %s\n", colorize(ansiBold, label+":"), fmt.Sprintf(format, args...))
}

func statusColor(status string) string {
	switch status {
	case "completed":
		return colorize(ansiGreen, status)
	case "failed":
		return colorize(ansiRed, status)
	case "cancelled":
		return colorize(ansiYellow, status)
	}
	return status
}
