package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/inspecta/internal/model"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "inspecta",
	Short: "inspecta - electrical installation audits grounded in NOM regulations",
	Long: `inspecta audits photographs of electrical installations against a corpus of
Mexican electrical norms (NOM-001-SEDE and related NMX standards).

A vision model reports the non-conformities it sees in the photograph. Each
finding is then grounded in a regulatory article retrieved by similarity
search over the indexed corpus, and everything is integrated into a
compliance report (dictamen).

inspecta never invents citations: an article the corpus cannot confirm is
replaced by a retrieved one, or reported as "Sin referencia".`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inspecta %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.inspecta/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("store", "", "vector store backend (sqlite, memory, postgres)")
	flags.String("data-dir", "", "directory of the sqlite vector store")
	flags.String("corpus-dir", "", "directory of regulatory documents, ingested when the store is empty")

	// Bind flags to viper
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.file", flags.Lookup("log-file"))
	_ = viper.BindPFlag("store.backend", flags.Lookup("store"))
	_ = viper.BindPFlag("store.data_dir", flags.Lookup("data-dir"))
	_ = viper.BindPFlag("corpus.dir", flags.Lookup("corpus-dir"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and INSPECTA_* variables
func initConfig() {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	if err := configure(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if verbose {
		viper.Set("log.level", "debug")
		if f := viper.ConfigFileUsed(); f != "" {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", f)
		}
	}
}

// configure registers defaults, environment lookup and the config file on v.
// A missing default config file is not an error.
func configure(v *viper.Viper, file string) error {
	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		return err
	}

	v.SetEnvPrefix("INSPECTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(model.HomeDir())
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return model.NewError(model.KindInvalidConfiguration, "config", fmt.Errorf("read %s: %w", describe(file), err))
	}
	return nil
}

func describe(file string) string {
	if file == "" {
		return filepath.Join(model.HomeDir(), "config.yaml")
	}
	return file
}

// ExitCode maps an error to the process exit status
func ExitCode(err error) int {
	switch model.KindOf(err) {
	case "":
		return 0
	case model.KindInvalidConfiguration:
		return 2
	case model.KindUpstreamUnavailable:
		return 3
	case model.KindMalformedModelResponse:
		return 4
	case model.KindCollectionEmpty:
		return 5
	default:
		return 1
	}
}
