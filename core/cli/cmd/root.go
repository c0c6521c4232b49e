package cmd

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kilnworks/kiln/core/shared/logging"
)

// version and commit are set via SetBuildInfo from main.
var (
	version = "dev"
	commit  = "unknown"
)

// SetBuildInfo records build metadata injected at link time.
func SetBuildInfo(v, c string) {
	if v != "" {
		version = v
	}
	if c != "" {
		commit = c
	}
}

var (
	schemaFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "kiln",
	Short:         "kiln\nSchema introspection and query engine for heterogeneous databases",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetLevel(logLevel)
		// Load .env from the schema file's directory, then the working
		// directory. Missing files are fine.
		if schemaFile != "" {
			_ = godotenv.Load(filepath.Join(filepath.Dir(schemaFile), ".env"))
		}
		_ = godotenv.Load()
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&schemaFile, "schema", "s", "schema.yaml", "Path to the schema document")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func readSchemaFile() (string, error) {
	data, err := os.ReadFile(schemaFile)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
