package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/inspecta/internal/cache"
	"github.com/ppiankov/inspecta/internal/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the text and embedding caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache usage per namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, dir, err := openCache()
		if err != nil {
			return err
		}
		usage, err := m.Usage()
		if err != nil {
			return err
		}

		fmt.Printf("Cache: %s\n", dir)
		if len(usage) == 0 {
			fmt.Println("(empty)")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAMESPACE\tENTRIES\tEXPIRED\tKB\t")
		for _, u := range usage {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t\n", u.Namespace, u.Entries, u.Expired, float64(u.Bytes)/1024)
		}
		return w.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [namespace]",
	Short: "Remove cached entries (text, embed, or everything)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, dir, err := openCache()
		if err != nil {
			return err
		}
		namespaces := []string{cache.NamespaceText, cache.NamespaceEmbed}
		if len(args) == 1 {
			namespaces = args
		}
		for _, ns := range namespaces {
			if err := m.Purge(ns); err != nil {
				return model.NewError(model.KindInvalidConfiguration, "cache", err)
			}
			fmt.Printf("✓ cleared %s (%s)\n", ns, dir)
		}
		return nil
	},
}

func openCache() (cache.Maintainer, string, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, "", err
	}
	m, ok := cache.New(cfg.Cache).(cache.Maintainer)
	if !ok {
		return nil, "", model.Errorf(model.KindInvalidConfiguration, "cache", "caching is disabled (cache.enabled=false)")
	}
	return m, cfg.Cache.Dir, nil
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}
