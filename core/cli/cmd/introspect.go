package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilnworks/kiln/core/config"
	"github.com/kilnworks/kiln/core/introspect"
)

var (
	introspectOut      string
	introspectPreviews []string
)

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Introspect the configured database and print the derived schema document",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSchemaFile()
		if err != nil {
			return err
		}

		result, err := introspect.New().Introspect(cmd.Context(), text, &introspect.Context{
			PreviewFeatures: introspectPreviews,
			LookupEnv:       config.OSLookupEnv,
		})
		if err != nil {
			return err
		}

		if introspectOut != "" {
			return os.WriteFile(introspectOut, []byte(result.SchemaText), 0644)
		}
		fmt.Print(result.SchemaText)
		return nil
	},
}

func init() {
	introspectCmd.Flags().StringVarP(&introspectOut, "out", "o", "", "Write the schema document to a file instead of stdout")
	introspectCmd.Flags().StringSliceVar(&introspectPreviews, "preview-feature", nil, "Enable a preview feature (repeatable)")
	rootCmd.AddCommand(introspectCmd)
}
