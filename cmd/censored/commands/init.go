package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tidysurv/censored/pkg/config"
	"github.com/tidysurv/censored/pkg/engines"
)

func newInitCommand() *cobra.Command {
	var (
		dataDir string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a censored workspace",
		Long: `Initialize a workspace with a config file and an empty fit database.

The config file holds the built-in defaults with the store path pointing into
the data directory. An existing config file is kept unless --force is given.`,
		Example: `  # Initialize in the current directory
  censored init

  # Initialize with a custom data directory and config path
  censored init --data-dir /var/lib/censored --config /etc/censored/censored.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = "censored.yaml"
			}

			log.Info().
				Str("data_dir", dataDir).
				Str("config", path).
				Msg("Initializing workspace")

			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dataDir, err)
			}
			fmt.Printf("✓ Created directory: %s\n", dataDir)

			cfg := config.Defaults()
			cfg.Store.Path = filepath.Join(dataDir, "censored.db")

			store, err := openStore(cmd.Context(), cfg.Store.Path, engines.MustDefault())
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return fmt.Errorf("failed to close store: %w", err)
			}
			fmt.Printf("✓ Initialized SQLite database: %s\n", cfg.Store.Path)

			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("✓ Config file already exists: %s\n", path)
				return nil
			}

			content, err := yaml.Marshal(&cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			content = append([]byte("# censored configuration\n"), content...)
			if err := os.WriteFile(path, content, 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			fmt.Printf("✓ Created config file: %s\n", path)

			fmt.Printf("\nNext steps:\n")
			fmt.Printf("  censored fit --spec model.cue --data train.csv\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for the fit database")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
