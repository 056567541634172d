package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/report"
)

var (
	installType    string
	outJSON        string
	outMD          string
	analyzeTimeout time.Duration
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Audit one photograph of an electrical installation",
	Long: `Analyze sends a photograph to the vision model and grounds every
non-conformity it reports in the regulatory corpus:
- Detect non-conformities and conformities in the image
- Verify or retrieve the applicable NOM article for each finding
- Assign severity and the overall CONFORME / NO_CONFORME verdict
- Print the JSON report, or write JSON and Markdown files

When the vector store is empty and corpus.dir is set, the corpus is ingested first.

Example:
  inspecta analyze tablero.jpg --type residential
  inspecta analyze nave.png --type industrial --json dictamen.json --md dictamen.md`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&installType, "type", "t", string(model.InstallationResidential), "installation type (residential, commercial, industrial)")
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (default: print to stdout)")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 5*time.Minute, "overall analysis timeout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	it, err := parseType(installType)
	if err != nil {
		return err
	}
	image, err := os.ReadFile(args[0])
	if err != nil {
		return model.NewError(model.KindInvalidConfiguration, "analyze", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), analyzeTimeout)
	defer cancel()

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

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Analyzing %s (%s)...\n", args[0], it.Label())
	}

	r, err := integrator.Analyze(ctx, image, it)
	if err != nil {
		return err
	}

	if outJSON == "" {
		if err := report.RenderJSON(os.Stdout, r); err != nil {
			return err
		}
	}
	if err := report.WriteFiles(r, outJSON, outMD); err != nil {
		return err
	}
	for _, p := range []string{outJSON, outMD} {
		if p != "" {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", p)
		}
	}

	counts := r.Counts()
	fmt.Fprintf(os.Stderr, "%s: %d no conformidades (alta %d, media %d, baja %d)\n",
		r.Classification.Status, len(r.Findings),
		counts[model.SeverityHigh], counts[model.SeverityMedium], counts[model.SeverityLow])
	return nil
}
