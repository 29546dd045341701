package app

import (
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filereader"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/store"
	"github.com/spf13/cobra"
)

// NewMergeCommand creates the "merge" subcommand.
func NewMergeCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge [flags] snapshot...",
		Short: "Merge snapshots from separate test processes.",
		Long: `Snapshots are decoded in parallel and merged in argument order into one
snapshot. Merging is commutative for line coverage: the set of tests covering
a line is the union over all inputs. Covered files missing locally are
resolved against --source-directories.

Example:
  phpcov merge -o all.cov.lz4 'build/**/*.cov.lz4'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			files, err := expandArgs(args, logger)
			if err != nil {
				return err
			}
			merged, err := store.LoadAndMerge(cmd.Context(), files, cfg.Workers, logger)
			if err != nil {
				return err
			}
			relocateFiles(merged, cfg.SourceDirectories, filereader.NewDefaultReader(), logger)
			if err := store.Save(output, merged); err != nil {
				return err
			}
			logger.Info("Wrote snapshot", "path", output, "files", len(merged.CoveredFiles()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "snapshot file to write, lz4 compressed when ending in .lz4")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
