package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilnworks/kiln/core/config"
	"github.com/kilnworks/kiln/core/datasource"
	"github.com/kilnworks/kiln/core/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the schema document without touching a database",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readSchemaFile()
		if err != nil {
			return err
		}

		cfg, err := config.Parse(text)
		if err != nil {
			return err
		}
		dm, err := schema.ParseDocument(text)
		if err != nil {
			return err
		}

		ds, err := cfg.First()
		if err != nil {
			return err
		}
		url, err := ds.ResolveURL(config.OSLookupEnv)
		if err != nil {
			return err
		}
		desc, err := datasource.Parse(url)
		if err != nil {
			return err
		}

		fmt.Printf("schema document is valid\n")
		fmt.Printf("  datasource: %s (%s)\n", ds.Name, desc.Family)
		fmt.Printf("  models:     %d\n", len(dm.Models))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
