// Package cmd holds the composer subcommands.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/mhbvr/collage/config"
	"github.com/spf13/cobra"
)

type storeFlags struct {
	configPath string
	dbPath     string
	dbType     string
}

func NewRootCmd() *cobra.Command {
	flags := &storeFlags{}

	cmd := &cobra.Command{
		Use:   "composer",
		Short: "Compose photo collages and manage saved collages",
		Long: `Composer runs a directory of photos through the collage editor: landscape,
non-duplicate photos are accepted until the collage is full, the result is
rendered and saved to a bolt, pebble or filetree database.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "Database path (directory for filetree and pebble, file for bolt)")
	cmd.PersistentFlags().StringVar(&flags.dbType, "type", "", "Database type: filetree, bolt, or pebble")

	cmd.AddCommand(newBuildCmd(flags))
	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newExportCmd(flags))

	return cmd
}

// load resolves the configuration: file, then environment, then flags.
func (f *storeFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("db") {
		cfg.Store.Path = f.dbPath
	}
	if cmd.Flags().Changed("type") {
		cfg.Store.Type = f.dbType
	}
	return cfg, cfg.IsValid()
}
