package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd(flags *storeFlags) *cobra.Command {
	var id, outPath string

	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write a saved collage to a PNG file",
		Example: `  composer export --db collages.db --type bolt --id 3f1c... --out collage.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || outPath == "" {
				return fmt.Errorf("--id and --out are required")
			}
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			reader, err := cfg.Store.OpenReader()
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer reader.Close()

			data, err := reader.Load(id)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s (%d bytes)\n", id, outPath, len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Collage id")
	cmd.Flags().StringVar(&outPath, "out", "", "Output PNG file")

	return cmd
}
