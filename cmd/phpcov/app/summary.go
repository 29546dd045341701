package app

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/analysis"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filereader"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/node"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/store"
	"github.com/spf13/cobra"
)

// NewSummaryCommand creates the "summary" subcommand.
func NewSummaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [flags] snapshot",
		Short: "Print per-file coverage of a snapshot.",
		Long: `Reads a snapshot, analyses the covered source files and prints line,
branch, path, method and class coverage per file followed by the totals.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := store.Load(args[0])
			if err != nil {
				return err
			}
			reader := filereader.NewDefaultReader()
			relocateFiles(data, cfg.SourceDirectories, reader, logger)
			analyser := analysis.NewAnalyser(reader, cfg.UseAnnotations, cfg.IgnoreDeprecatedCode)
			root, err := node.NewBuilder(analyser).Build(data)
			if err != nil {
				return err
			}
			logger.Debug("Built report tree", "root", root.Name(), "files", len(root.AllFiles()))
			writeSummary(cmd.OutOrStdout(), root)
			return nil
		},
	}
	return cmd
}

func writeSummary(w io.Writer, root *node.Directory) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(root.Name())
	tbl.AppendHeader(table.Row{"File", "Lines", "Branches", "Paths", "Functions and Methods", "Classes and Traits"})
	for _, f := range root.AllFiles() {
		tbl.AppendRow(summaryRow(f.ID(), f.Counts()))
	}
	tbl.AppendFooter(summaryRow("Total", root.Counts()))

	right := text.AlignRight
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: right, AlignFooter: right},
		{Number: 3, Align: right, AlignFooter: right},
		{Number: 4, Align: right, AlignFooter: right},
		{Number: 5, Align: right, AlignFooter: right},
		{Number: 6, Align: right, AlignFooter: right},
	})
	tbl.Render()
}

func summaryRow(name string, c node.Counts) table.Row {
	testedClasses, classes := c.ClassesAndTraits()
	return table.Row{
		name,
		ratio(c.ExecutedLines, c.ExecutableLines),
		ratio(c.ExecutedBranches, c.ExecutableBranches),
		ratio(c.ExecutedPaths, c.ExecutablePaths),
		ratio(c.TestedMethods+c.TestedFunctions, c.Methods+c.Functions),
		ratio(testedClasses, classes),
	}
}

func ratio(covered, total int) string {
	return fmt.Sprintf("%6.2f%% (%d/%d)", node.Percent(covered, total), covered, total)
}
