package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/vision"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured services are reachable",
	Long: `Doctor checks the vector store, the embedding backend and the vision
provider, and reports what an analysis would need to run.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		printCheck("config", err)
		return err
	}
	defer a.Close()
	printCheck("config", nil)

	var firstErr error
	check := func(name string, err error) {
		printCheck(name, err)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	n, err := a.collection.Count(ctx)
	if err == nil && n == 0 {
		err = model.NewError(model.KindCollectionEmpty, "store", fmt.Errorf("no chunks indexed (backend %s)", a.cfg.Store.Backend))
	}
	check(fmt.Sprintf("store (%s, %d chunks)", a.cfg.Store.Backend, n), err)

	_, err = a.embedder.Embed(ctx, "conductor expuesto")
	check(fmt.Sprintf("embedding (%s)", a.embedder.ModelName()), err)

	client, err := vision.NewFromConfig(a.cfg.Vision, a.cfg.HTTP, a.log)
	if err == nil {
		err = client.Ping(ctx)
	}
	check(fmt.Sprintf("vision (%s/%s)", a.cfg.Vision.Provider, a.cfg.Vision.Model), err)

	return firstErr
}

func printCheck(name string, err error) {
	if err != nil {
		fmt.Printf("✗ %s: [%s] %v\n", name, model.KindOf(err), err)
		return
	}
	fmt.Printf("✓ %s\n", name)
}
