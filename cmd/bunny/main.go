// bunny is a federated cohort-discovery worker: it translates OMOP
// cohort queries from an upstream coordinator into SQL against a local
// clinical data warehouse, applies statistical disclosure control, and
// returns protocol-conformant results.
//
// Two modes: "run" solves one local query payload and writes the
// result to a file; "daemon" polls the coordinator for work until
// terminated.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	// Database drivers for the engines bunny supports; internal/bunnydb
	// selects among them by registered name.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Health-Informatics-UoN/bunny/internal/bunnyconfig"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "bunny",
	Short:         "Federated cohort-discovery worker for OMOP data sources",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDaemonCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the configured level and
// optional rotating log file.
func newLogger(cfg bunnyconfig.Logging) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// setupMetrics wires the OTel meter provider: an OTLP HTTP exporter
// when BUNNY_OTLP_ENDPOINT is set, otherwise a stdout exporter when
// stdoutFallback is requested (daemon mode), otherwise nothing. The
// returned shutdown func flushes on exit.
func setupMetrics(ctx context.Context, stdoutFallback bool) (func(context.Context) error, error) {
	var reader sdkmetric.Reader
	switch {
	case os.Getenv("BUNNY_OTLP_ENDPOINT") != "":
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(os.Getenv("BUNNY_OTLP_ENDPOINT")))
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	case stdoutFallback:
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	default:
		return func(context.Context) error { return nil }, nil
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}
