package main

import (
	"context"
	"fmt"
	"os"

	"query-doctor/internal/config"
	"query-doctor/internal/ingest"
	"query-doctor/internal/model"
	"query-doctor/internal/pipeline"
	"query-doctor/internal/reporter"
	"query-doctor/internal/schema"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logPath    string
	schemaPath string
	configPath string
	reportFmt  string
	outputFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "query-doctor",
	Short: "A diagnostic tool for ORM query logs",
	Long: `query-doctor inspects the SQL queries an application executed (as dumped
by its ORM profiler), cross-checks them against the database schema, and
reports performance, correctness and security anti-patterns: N+1 loads,
cartesian products, wasteful joins, oversized hydration and injection risks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalysis()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&logPath, "log", "l", "", "Query log file (JSON/JSONL) or profiler dump directory")
	rootCmd.Flags().StringVarP(&schemaPath, "schema", "S", "", "Database schema DDL file (optional but recommended)")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	rootCmd.Flags().StringVarP(&reportFmt, "report", "r", "console", "Report format (console, json)")
	rootCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output file path (json format only, default stdout)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	_ = rootCmd.MarkFlagRequired("log")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runAnalysis() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger()
	defer logger.Sync()

	// Schema metadata is optional: without it the relationship-aware checks
	// degrade to structural heuristics instead of failing.
	meta := schema.NewIndex("")
	if schemaPath != "" {
		if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
			fmt.Printf("Warning: Schema file not found at %s. Proceeding without schema-aware checks.\n", schemaPath)
		} else {
			meta, err = schema.LoadFile(schemaPath)
			if err != nil {
				return fmt.Errorf("failed to load schema: %w", err)
			}
			fmt.Printf("Schema loaded. Found %d tables.\n", len(meta.BuildMetadataMap()))
		}
	}

	ctx := context.Background()
	records, err := ingest.LoadPath(ctx, logPath, cfg.Concurrency, logger)
	if err != nil {
		return fmt.Errorf("failed to load query log: %w", err)
	}
	fmt.Printf("Loaded %d query records from %s. Analyzing...\n", len(records), logPath)

	report := pipeline.New(cfg, meta, logger).Run(records)

	var rpt model.Reporter
	switch reportFmt {
	case "json":
		rpt = reporter.NewJSONReporter(outputFile)
	default:
		rpt = reporter.NewConsoleReporter()
	}
	if err := rpt.Report(report); err != nil {
		return fmt.Errorf("reporting failed: %w", err)
	}

	// Non-zero exit on critical findings so CI pipelines can gate on it.
	if report.HasCritical() {
		os.Exit(1)
	}
	return nil
}
