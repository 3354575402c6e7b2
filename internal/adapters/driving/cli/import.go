package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rmsync/internal/adapters/driven/extract"
)

var importCmd = &cobra.Command{
	Use:   "import <file|directory>",
	Short: "Import extraction bundles",
	Long: `Imports notebook extraction bundles (JSON) into the local content
store. A directory imports every bundle in it. Imported notebooks are
picked up by the next sync.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if contentStore == nil {
		return errors.New("content store not configured")
	}

	results, err := extract.ImportPath(cmd.Context(), contentStore, args[0])
	for _, r := range results {
		cmd.Printf("Imported %s: %d pages, %d highlights, %d todos\n", r.NotebookUUID, r.Pages, r.Highlights, r.Todos)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	if len(results) == 0 {
		cmd.Println("No bundles found.")
	}
	return nil
}
