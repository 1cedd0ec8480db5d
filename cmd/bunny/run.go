package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Health-Informatics-UoN/bunny/internal/bunnyconfig"
	"github.com/Health-Informatics-UoN/bunny/internal/bunnydb"
	"github.com/Health-Informatics-UoN/bunny/internal/cache"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
	"github.com/Health-Informatics-UoN/bunny/internal/solver"
)

func newRunCmd() *cobra.Command {
	var (
		bodyPath  string
		bodyJSON  string
		output    string
		modifiers string
		noEncode  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Solve one query payload and write the result to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (bodyPath == "") == (bodyJSON == "") {
				return fmt.Errorf("exactly one of --body or --body-json is required")
			}
			if !strings.HasSuffix(output, ".json") {
				return fmt.Errorf("please specify a JSON file (ending in '.json')")
			}

			settings, err := bunnyconfig.Load(false)
			if err != nil {
				return err
			}
			logger := newLogger(settings.Logging)
			logger.Info("starting bunny", "version", Version)

			ctx := cmd.Context()
			shutdownMetrics, err := setupMetrics(ctx, false)
			if err != nil {
				return err
			}
			defer shutdownMetrics(ctx)

			payload := []byte(bodyJSON)
			if bodyPath != "" {
				payload, err = os.ReadFile(bodyPath)
				if err != nil {
					return fmt.Errorf("read query body: %w", err)
				}
			}

			mods, err := protocol.ParseModifiers(modifiers)
			if err != nil {
				return err
			}

			db, err := bunnydb.Open(ctx, settings.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			// One-shot runs never reuse results, so the cache stays off.
			noCache, err := cache.New("", false, 0)
			if err != nil {
				return err
			}

			exec := solver.NewExecutor(db.Dialect(), db, noCache, logger,
				settings.Obfuscation.LowNumberSuppressionThreshold,
				settings.Obfuscation.RoundingTarget)

			result, err := exec.Execute(ctx, payload, mods)
			if err != nil {
				return err
			}

			if noEncode {
				decodeResultFiles(&result, logger)
			}

			data, err := json.Marshal(result.ToWire())
			if err != nil {
				return fmt.Errorf("serialize result: %w", err)
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("save results: %w", err)
			}
			logger.Info("saved results", "output", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&bodyPath, "body", "", "Path to the JSON file containing the query")
	cmd.Flags().StringVar(&bodyJSON, "body-json", "", "The JSON query as an inline string")
	cmd.Flags().StringVarP(&output, "output", "o", "output.json", "Path to the output file")
	cmd.Flags().StringVarP(&modifiers, "modifiers", "m", "[]", "Results modifiers as a JSON array")
	cmd.Flags().BoolVar(&noEncode, "no-encode", false, "Leave file payloads as plain TSV instead of base64")
	cmd.MarkFlagsMutuallyExclusive("body", "body-json")

	return cmd
}

// decodeResultFiles rewrites each attached file's payload from base64
// back to plain text, for --no-encode runs where a human reads the
// output directly.
func decodeResultFiles(result *protocol.Result, logger *slog.Logger) {
	for i, f := range result.Files {
		raw, err := base64.StdEncoding.DecodeString(f.FileData)
		if err != nil {
			logger.Warn("could not decode file payload", "file", f.FileName, "error", err)
			continue
		}
		result.Files[i].FileData = string(raw)
		result.Files[i].FileSize = float64(len(raw)) / 1000
	}
}
