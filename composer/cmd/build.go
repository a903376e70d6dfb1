package cmd

import (
	"fmt"
	"log"
	"maps"
	"path/filepath"
	"slices"

	"github.com/mhbvr/collage/editor"
	"github.com/mhbvr/collage/picker"
	"github.com/mhbvr/collage/pipeline"
	"github.com/spf13/cobra"
)

func newBuildCmd(flags *storeFlags) *cobra.Command {
	var srcDir string
	var width, height int
	var force, verbose bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compose a collage from a directory of photos and save it",
		Example: `  # Compose from ./photos into a bolt database
  composer build --src ./photos --db collages.db --type bolt

  # Save even with an odd number of accepted photos
  composer build --src ./photos --db ./collages --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if srcDir == "" {
				return fmt.Errorf("--src is required")
			}
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("width") {
				cfg.Editor.PreviewWidth = width
			}
			if cmd.Flags().Changed("height") {
				cfg.Editor.PreviewHeight = height
			}
			if err := cfg.IsValid(); err != nil {
				return err
			}

			store, err := cfg.Store.Open()
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			opts, err := cfg.Editor.EditorOptions()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts = append(opts,
				// Nothing to throttle without an interactive preview
				editor.WithRenderInterval(0),
				editor.WithWriter(store),
				editor.WithNotifier(editor.NotifierFunc(func(title, text string) {
					fmt.Fprintln(out, title, text)
				})),
			)
			if verbose {
				opts = append(opts, editor.WithLogger(log.New(cmd.ErrOrStderr(), "", log.LstdFlags)))
			}

			ctx := cmd.Context()
			ed, err := editor.New(ctx, opts...)
			if err != nil {
				return err
			}
			defer ed.Close()

			files, err := picker.Files(srcDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Found %d photos in %s\n", len(files), srcDir)

			session, err := ed.OpenSession(ctx)
			if err != nil {
				return err
			}
			skipped := 0
			for _, path := range files {
				photo, err := picker.ReadPhoto(path)
				if err != nil {
					skipped++
					fmt.Fprintf(out, "  Skipping %s: %v\n", filepath.Base(path), err)
					continue
				}
				res, err := session.Add(ctx, photo)
				if err != nil {
					return err
				}
				if res.Reason != pipeline.ReasonNone {
					fmt.Fprintf(out, "  %s: %s (%s)\n", photo.Name(), res.Verdict, res.Reason)
				} else {
					fmt.Fprintf(out, "  %s: %s\n", photo.Name(), res.Verdict)
				}
				if res.Verdict == pipeline.Terminated {
					break
				}
			}
			stats, err := session.Complete(ctx)
			if err != nil {
				return err
			}

			state, err := ed.State(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSelection completed:\n")
			fmt.Fprintf(out, "  Evaluated: %d\n", stats.Evaluated)
			fmt.Fprintf(out, "  Accepted: %d\n", stats.Accepted)
			for _, reason := range slices.Sorted(maps.Keys(stats.Rejected)) {
				fmt.Fprintf(out, "  Rejected (%s): %d\n", reason, stats.Rejected[reason])
			}
			fmt.Fprintf(out, "  Skipped: %d\n", skipped)

			if !state.SaveEnabled && !(force && state.Count > 0) {
				return fmt.Errorf("cannot save a collage of %d photos: an even, non-zero number is required (use --force to save an odd count)", state.Count)
			}

			id, err := ed.Save(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  Collage id: %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&srcDir, "src", "", "Source directory containing photo files")
	cmd.Flags().IntVar(&width, "width", editor.DefaultPreviewSize.X, "Collage width in pixels")
	cmd.Flags().IntVar(&height, "height", editor.DefaultPreviewSize.Y, "Collage height in pixels")
	cmd.Flags().BoolVar(&force, "force", false, "Save even when the number of photos is odd")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	return cmd
}
