package cmd

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/mhbvr/collage"
	"github.com/spf13/cobra"
)

func newListCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved collages, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			reader, err := cfg.Store.OpenReader()
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer reader.Close()

			saved, err := reader.List()
			if err != nil {
				return err
			}
			slices.SortFunc(saved, func(a, b collage.SavedCollage) int {
				return cmp.Or(a.SavedAt.Compare(b.SavedAt), cmp.Compare(a.ID, b.ID))
			})

			out := cmd.OutOrStdout()
			for _, c := range saved {
				fmt.Fprintf(out, "%s\t%d bytes\t%s\n", c.ID, c.Size, c.SavedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "%d collages\n", len(saved))
			return nil
		},
	}
}
