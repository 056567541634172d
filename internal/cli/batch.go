package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/report"
	"github.com/ppiankov/inspecta/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchType    string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <list-file|dir>",
	Short: "Audit many photographs in parallel",
	Long: `Batch analyzes every image of a directory, or every path listed in a file
(one per line, blank lines and # comments ignored, duplicates dropped).

Each image is an independent request: a failure is reported and the batch
continues. A JSON and a Markdown report are written per image.

Example:
  inspecta batch fotos/ --type commercial
  inspecta batch lista.txt --concurrency 2 --output-dir ./dictamenes`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchType, "type", "t", string(model.InstallationResidential), "installation type (residential, commercial, industrial)")
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of images analyzed at once")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./inspecta-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) error {
	it, err := parseType(batchType)
	if err != nil {
		return err
	}
	paths, err := worker.CollectImages(args[0])
	if err != nil {
		return model.NewError(model.KindInvalidConfiguration, "batch", err)
	}
	if len(paths) == 0 {
		return model.Errorf(model.KindInvalidConfiguration, "batch", "no images found in %s", args[0])
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  inspecta batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input:        %s (%d images)\n", args[0], len(paths))
	fmt.Fprintf(os.Stderr, "  Type:         %s\n", it.Label())
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ensureCorpus(ctx); err != nil {
		return err
	}
	integrator, err := a.integrator()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	processor := worker.NewBatchProcessor(integrator, concurrency)
	results := processor.ProcessImages(ctx, paths, it)

	successCount := 0
	failureCount := 0
	var firstErr error
	names := make(map[string]int)

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			if firstErr == nil {
				firstErr = result.Error
			}
			fmt.Fprintf(os.Stderr, "✗ %s: [%s] %v\n", result.Path, model.KindOf(result.Error), result.Error)
			continue
		}

		slug := uniqueName(names, sanitizeFilename(result.Path))
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")
		if err := report.WriteFiles(result.Report, jsonPath, mdPath); err != nil {
			failureCount++
			if firstErr == nil {
				firstErr = err
			}
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Path, err)
			continue
		}

		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s: %s (%d no conformidades)\n",
			result.Path, result.Report.Classification.Status, len(result.Report.Findings))
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d images\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "\n")

	if successCount == 0 {
		return fmt.Errorf("every image failed: %w", firstErr)
	}
	return nil
}

// sanitizeFilename turns an image path into a report file stem
func sanitizeFilename(s string) string {
	s = filepath.Base(s)
	s = strings.TrimSuffix(s, filepath.Ext(s))

	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		case ' ':
			return '-'
		}
		return r
	}, s)

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "imagen"
	}
	return s
}

// uniqueName suffixes repeated stems so two images never share a report
func uniqueName(seen map[string]int, stem string) string {
	seen[stem]++
	if n := seen[stem]; n > 1 {
		return fmt.Sprintf("%s-%d", stem, n)
	}
	return stem
}
