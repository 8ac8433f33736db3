package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mrvillage/gwas-summary-stats/internal/catalog"
	"github.com/mrvillage/gwas-summary-stats/internal/harmonize"
	"github.com/mrvillage/gwas-summary-stats/internal/ingest"
	"github.com/mrvillage/gwas-summary-stats/internal/liftover"
	"github.com/mrvillage/gwas-summary-stats/internal/seqlookup"
	"github.com/mrvillage/gwas-summary-stats/internal/sheets"
)

type harmonizeOptions struct {
	sheetID     string
	traitName   string
	rawInputDir string
	liftoverBin string
	liftoverDir string
	catalogPath string
	samtools    string
	fastaRef    string
	outputFile  string
}

func newHarmonizeCmd(verbose *bool) *cobra.Command {
	var opts harmonizeOptions

	cmd := &cobra.Command{
		Use:   "harmonize",
		Short: "Run the full harmonization pipeline for one trait",
		Long: `Fetch the formatting legend, normalize the trait's raw summary
statistics, lift coordinates to hg19 and hg38, match records against the
reference catalog under both allele orientations, resolve the remainder
against the reference sequence, and write the merged table.`,
		Example: `  sumstats harmonize --sheet-id 1a2b3c... --trait height \
      --raw-input-dir /data/raw --catalog dbsnp.tsv.gz \
      --liftover /usr/local/bin/liftOver --liftover-dir /data/chains \
      --samtools samtools --fasta-ref hg38.fa -o height.txt.gz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(*verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runHarmonize(&opts, logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&opts.sheetID, "sheet-id", "g", "", "Google Sheets ID of the GWAS formatting legend")
	fl.StringVarP(&opts.traitName, "trait", "t", "", "Trait name to harmonize")
	fl.StringVarP(&opts.rawInputDir, "raw-input-dir", "i", "", "Directory holding the raw summary-statistics files")
	fl.StringVarP(&opts.catalogPath, "catalog", "d", "", "Reference variant catalog (.tsv, .tsv.gz, or converted .duckdb)")
	fl.StringVarP(&opts.liftoverBin, "liftover", "l", "", "Path to the liftOver binary (default from config tools.liftover)")
	fl.StringVar(&opts.liftoverDir, "liftover-dir", "", "Directory holding the liftOver chain files")
	fl.StringVarP(&opts.samtools, "samtools", "s", "", "Path to the samtools binary (default from config tools.samtools)")
	fl.StringVarP(&opts.fastaRef, "fasta-ref", "f", "", "Reference FASTA for the sequence lookup")
	fl.StringVarP(&opts.outputFile, "output", "o", "", "Output file (gzip-compressed TSV)")
	for _, required := range []string{"sheet-id", "trait", "raw-input-dir", "catalog", "liftover-dir", "fasta-ref", "output"} {
		cobra.CheckErr(cmd.MarkFlagRequired(required))
	}
	return cmd
}

func runHarmonize(opts *harmonizeOptions, logger *zap.Logger) error {
	if opts.samtools == "" {
		opts.samtools = viper.GetString("tools.samtools")
	}
	if opts.samtools == "" {
		opts.samtools = "samtools"
	}
	if opts.liftoverBin == "" {
		opts.liftoverBin = viper.GetString("tools.liftover")
	}
	if opts.liftoverBin == "" {
		opts.liftoverBin = "liftOver"
	}
	apiKey := viper.GetString("sheets.api_key")
	if apiKey == "" {
		return fmt.Errorf("sheets API key is not configured; run: sumstats config set sheets.api_key <key>")
	}

	logger.Info("starting pipeline", zap.String("trait", opts.traitName))
	outputDir := filepath.Dir(opts.outputFile)

	legend, err := sheets.NewClient(apiKey).FetchLegend(opts.sheetID)
	if err != nil {
		return err
	}
	leg, err := ingest.SelectTrait(legend, opts.traitName)
	if err != nil {
		return err
	}

	logger.Info("starting preformatting")
	raw, err := ingest.Preformat(leg, opts.rawInputDir, logger)
	if err != nil {
		return err
	}
	if err := raw.WriteGzip(filepath.Join(outputDir, "raw_data.txt.gz")); err != nil {
		return err
	}

	logger.Info("starting liftover")
	coords, err := liftover.Run(liftover.Config{
		Binary:   opts.liftoverBin,
		ChainDir: opts.liftoverDir,
	}, raw, logger)
	if err != nil {
		return err
	}
	if err := liftover.Attach(raw, coords); err != nil {
		return err
	}

	logger.Info("loading reference catalog", zap.String("path", opts.catalogPath))
	cat, err := catalog.Load(opts.catalogPath)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", zap.Int("entries", cat.NumEntries()))

	logger.Info("starting catalog matching")
	joiner := harmonize.NewJoiner()
	joiner.SetLogger(logger)
	matched, missing, err := joiner.Join(raw, cat)
	if err != nil {
		return err
	}
	if err := matched.WriteGzip(filepath.Join(outputDir, "raw_data_merged.txt.gz")); err != nil {
		return err
	}
	if err := missing.WriteGzip(filepath.Join(outputDir, "raw_data_missing.txt.gz")); err != nil {
		return err
	}

	logger.Info("starting ref/alt check")
	engine := seqlookup.NewEngine(&seqlookup.FaidxRunner{
		Samtools: opts.samtools,
		FastaRef: opts.fastaRef,
	})
	engine.SetLogger(logger)
	if n := viper.GetInt("lookup.workers"); n > 0 {
		engine.SetWorkers(n)
	}
	if n := viper.GetInt("lookup.batch_size"); n > 0 {
		engine.SetBatchSize(n)
	}
	if err := engine.Resolve(matched, missing); err != nil {
		return err
	}

	logger.Info("writing final data", zap.String("path", opts.outputFile), zap.Int("rows", matched.NumRows()))
	if err := matched.WriteGzip(opts.outputFile); err != nil {
		return err
	}
	logger.Info("pipeline complete")
	return nil
}
