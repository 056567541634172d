package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/retrieve"
)

var (
	resetStore bool
	searchK    int
	searchNorm string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index the regulatory corpus",
	Long: `Ingest extracts the text of every .txt, .md, .html and .pdf document under
dir (default: corpus.dir), splits it into article-labelled chunks and stores
their embeddings. PDFs are read with pdftotext (poppler-utils).

Re-ingesting a document replaces its chunks. Use --reset to start from an
empty store.

Example:
  inspecta ingest ./normas
  inspecta ingest --reset`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		dir := a.cfg.Corpus.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return model.Errorf(model.KindInvalidConfiguration, "ingest", "no corpus directory: pass one or set corpus.dir")
		}

		in, err := a.ingester(resetStore)
		if err != nil {
			return err
		}
		stats, err := in.IngestDir(ctx, dir)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Indexed %d documents: %d chunks stored", stats.Files, stats.Added)
		if stats.SkippedFiles > 0 || stats.SkippedChunks > 0 {
			fmt.Printf(" (%d documents and %d chunks skipped)", stats.SkippedFiles, stats.SkippedChunks)
		}
		if stats.RemovedChunks > 0 {
			fmt.Printf(", %d stale chunks removed", stats.RemovedChunks)
		}
		fmt.Printf(" in %s\n", stats.Duration.Round(time.Millisecond))
		return nil
	},
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find the articles that apply to a description",
	Long: `Search embeds the text and prints the closest corpus chunks with their
similarity. Hits below retrieval.threshold are marked.

Example:
  inspecta search "conductor expuesto cerca de gabinete metálico"
  inspecta search "contactos en baño" -k 3 --norm NOM-001-SEDE-2012`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ensureCorpus(ctx); err != nil {
			return err
		}

		k := searchK
		if k <= 0 {
			k = a.cfg.Retrieval.TopK
		}
		hits, err := a.collection.SearchNorm(ctx, strings.Join(args, " "), k, searchNorm)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println(retrieve.NoReference)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SIMILITUD\tARTÍCULO\tNORMA\tFUENTE\t")
		for _, h := range hits {
			mark := ""
			if h.Similarity < a.cfg.Retrieval.Threshold {
				mark = " (bajo umbral)"
			}
			article := h.Chunk.Article()
			if article == "" {
				article = "-"
			}
			fmt.Fprintf(w, "%.3f%s\t%s\t%s\t%s\t\n", h.Similarity, mark, article, h.Chunk.NormID, h.Chunk.SourceDocument)
		}
		return w.Flush()
	},
}

// articleCmd represents the article command
var articleCmd = &cobra.Command{
	Use:   "article <label>",
	Short: "Print the text of an article",
	Example: `  inspecta article 300-4
  inspecta article "Artículo 210-8"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		text, err := a.retriever().ArticleContent(ctx, strings.Join(args, " "))
		if model.KindOf(err) == model.KindCitationNotFound {
			fmt.Println(retrieve.NoReference)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the indexed documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sources, err := a.collection.Sources(ctx)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No documents indexed. Run 'inspecta ingest <dir>'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NORMA\tDOCUMENTO\tFRAGMENTOS\t")
		total := 0
		for _, s := range sources {
			fmt.Fprintf(w, "%s\t%s\t%d\t\n", s.NormID, s.SourceDocument, s.Chunks)
			total += s.Chunks
		}
		fmt.Fprintf(w, "\t\t%d\t\n", total)
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd, searchCmd, articleCmd, sourcesCmd)

	ingestCmd.Flags().BoolVar(&resetStore, "reset", false, "clear the store before ingesting")

	searchCmd.Flags().IntVarP(&searchK, "top", "k", 0, "number of results (default: retrieval.top_k)")
	searchCmd.Flags().StringVar(&searchNorm, "norm", "", "restrict results to one norm, e.g. NOM-001-SEDE-2012")
}
