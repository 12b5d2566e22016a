package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	format     string
	skipVerify bool
	slot       string
	chartPaths = map[string]*string{}
)

func main() {
	_ = godotenv.Load(".env", ".env.local")

	rootCmd := &cobra.Command{
		Use:   "chartsense",
		Short: "Multi-timeframe chart analysis from the command line",
		Long: `ChartSense checks chart screenshots against their timeframe and runs a
top-down analysis over them.

Examples:
  chartsense verify --slot 15M chart-15m.png
  chartsense analyze --1h h1.png --15m m15.png --3m m3.png --format json`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")

	verifyCmd := &cobra.Command{
		Use:   "verify [chart]",
		Short: "Check that a chart shows the expected timeframe",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	verifyCmd.Flags().StringVar(&slot, "slot", "1H", "expected timeframe: 1H, 15M, 5M, 3M, 1M")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the top-down analysis over a set of charts",
		Args:  cobra.NoArgs,
		RunE:  runAnalyze,
	}
	for _, f := range []struct{ name, usage string }{
		{"1h", "1 hour chart (required)"},
		{"15m", "15 minute chart (required)"},
		{"5m", "5 minute chart"},
		{"3m", "3 minute chart (required)"},
		{"1m", "1 minute chart"},
	} {
		p := new(string)
		chartPaths[f.name] = p
		analyzeCmd.Flags().StringVar(p, f.name, "", f.usage)
	}
	analyzeCmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	analyzeCmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "skip the timeframe check")

	rootCmd.AddCommand(verifyCmd, analyzeCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
