package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mrvillage/gwas-summary-stats/internal/catalog"
)

func newCacheCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Convert the reference catalog to a DuckDB cache",
		Long: `Convert a delimited reference-catalog file to a DuckDB database so
repeat harmonization runs skip the text parse. The converted file is
accepted anywhere the original catalog is (--catalog).`,
		Example: `  sumstats cache --input dbsnp.tsv.gz --output dbsnp.duckdb`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ext := filepath.Ext(outputPath); ext != ".duckdb" && ext != ".db" {
				outputPath += ".duckdb"
			}
			// DuckDB cannot re-create an existing database file.
			if _, err := os.Stat(outputPath); err == nil {
				if err := os.Remove(outputPath); err != nil {
					return fmt.Errorf("removing existing file: %w", err)
				}
			}
			count, err := catalog.Convert(inputPath, outputPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converted %d catalog entries to %s\n", count, outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input catalog file (.tsv or .tsv.gz)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output DuckDB file path")
	cobra.CheckErr(cmd.MarkFlagRequired("input"))
	cobra.CheckErr(cmd.MarkFlagRequired("output"))
	return cmd
}
