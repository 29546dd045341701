package app

import (
	"fmt"
	"log/slog"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/glob"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/logging"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/reportconfig"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/utils"
	"github.com/spf13/cobra"
)

// NewPhpcovCommand creates the root command for the phpcov tool.
func NewPhpcovCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phpcov",
		Short: "Collect, merge and summarize code coverage.",
		Long: `phpcov turns raw coverage dumps into processed coverage snapshots,
merges snapshots from separate test processes and prints coverage summaries.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default is .phpcov.yaml in the working or home directory)")
	flags.String("verbosity", reportconfig.DefaultVerbosity, "log level: Verbose, Info, Warning, Error or Off")
	flags.Int("workers", reportconfig.DefaultWorkers, "number of snapshots decoded in parallel")
	flags.StringSlice("source-directories", nil, "directories searched for source files")
	flags.StringSlice("suffixes", nil, "source file suffixes (default .php)")
	flags.StringSlice("file-filters", nil, "file filters, e.g. +src/**,-**/tests/**")
	flags.Bool("use-annotations", true, "honor @codeCoverageIgnore annotations")
	flags.Bool("ignore-deprecated-code", false, "exclude code marked deprecated")
	flags.Bool("include-uncovered-files", true, "add source files that no test executed")

	cmd.AddCommand(NewIngestCommand())
	cmd.AddCommand(NewMergeCommand())
	cmd.AddCommand(NewSummaryCommand())

	return cmd
}

// loadConfig resolves the configuration of cmd and a logger writing to its
// error stream.
func loadConfig(cmd *cobra.Command) (*reportconfig.Config, *slog.Logger, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := reportconfig.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logging.NewLogger(cmd.ErrOrStderr(), cfg.Verbosity()), nil
}

// expandArgs expands the glob patterns in args. Patterns without matches are
// logged. It fails when nothing matched at all.
func expandArgs(args []string, logger *slog.Logger) ([]string, error) {
	files, unmatched, err := glob.ExpandAll(args)
	if err != nil {
		return nil, err
	}
	for _, p := range unmatched {
		logger.Warn("No files found for pattern", "pattern", p)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files found for %v", args)
	}
	return files, nil
}

// relocateFiles renames every covered file that does not exist locally to the
// file it resolves to under sourceDirs, e.g. for snapshots recorded in a
// container. Files that cannot be resolved keep their path.
func relocateFiles(data *coverage.ProcessedCoverageData, sourceDirs []string, fsys utils.Stater, logger *slog.Logger) {
	if len(sourceDirs) == 0 {
		return
	}
	for _, file := range data.CoveredFiles() {
		if _, err := fsys.Stat(file); err == nil {
			continue
		}
		local, err := utils.FindFileInSourceDirs(file, sourceDirs, fsys)
		if err != nil {
			logger.Warn("Covered file not found locally", "file", file)
			continue
		}
		data.RenameFile(file, local)
		logger.Debug("Relocated covered file", "from", file, "to", local)
	}
}
