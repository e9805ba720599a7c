package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Veraticus/invoice-report/internal/cli"
	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/config"
	"github.com/Veraticus/invoice-report/internal/engine"
	"github.com/Veraticus/invoice-report/internal/excel"
	"github.com/Veraticus/invoice-report/internal/files"
	"github.com/Veraticus/invoice-report/internal/service"
	"github.com/Veraticus/invoice-report/internal/sheets"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const runStages = 4

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the latest invoice export",
		Long: `Process the most recent invoice export in the raw data directory.

Every line is classified, duplicates and outliers are flagged and the
Charts & Coding total is allocated across the MMP reclass states. The
invoice report and the MMP allocation workbook are written under
<output-dir>/<YYYY_MM>/, the run is archived and, with --sheets, the
report is published to Google Sheets.`,
		RunE: runRun,
	}

	cmd.Flags().String("raw-dir", "", "Directory holding the invoice exports")
	cmd.Flags().String("output-dir", "", "Root directory for processed reports")
	cmd.Flags().String("reference", "", "Path to the MMP reclass reference workbook")
	cmd.Flags().StringP("file", "f", "", "Process this export instead of the newest one")
	cmd.Flags().Bool("sheets", false, "Also publish the report to Google Sheets")
	cmd.Flags().Bool("no-archive", false, "Do not archive the run")
	cmd.Flags().Bool("no-progress", false, "Hide the progress bar")
	cmd.Flags().Float64("outlier-k", 0, "Standard deviations beyond which an amount is an outlier")
	cmd.Flags().Int("min-sample", 0, "Minimum lines per category before outliers are flagged")

	_ = viper.BindPFlag("paths.raw_dir", cmd.Flags().Lookup("raw-dir"))
	_ = viper.BindPFlag("paths.output_dir", cmd.Flags().Lookup("output-dir"))
	_ = viper.BindPFlag("paths.reference", cmd.Flags().Lookup("reference"))
	_ = viper.BindPFlag("anomaly.k", cmd.Flags().Lookup("outlier-k"))
	_ = viper.BindPFlag("anomaly.min_sample_size", cmd.Flags().Lookup("min-sample"))

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	publishSheets, _ := cmd.Flags().GetBool("sheets")
	noArchive, _ := cmd.Flags().GetBool("no-archive")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	interrupts := cli.NewInterruptHandler(os.Stderr)
	ctx := interrupts.HandleInterrupts(cmd.Context())
	defer interrupts.Stop()

	cfg, err := config.Load()
	if err != nil {
		return common.NewUserError("Configuration is invalid", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return common.NewUserError("Configuration is invalid", err)
	}
	eng, err := engine.New(engineCfg)
	if err != nil {
		return err
	}

	progress := cli.NewTerminalProgress(runStages)
	if noProgress {
		progress = cli.NewStageProgress(nil, runStages)
	}
	defer progress.Abort()

	// Load
	progress.Describe("Reading export")
	if file == "" {
		latest, findErr := files.FindLatest(cfg.Paths.RawDir)
		if findErr != nil {
			return common.NewUserError(fmt.Sprintf("No invoice export found in %s", cfg.Paths.RawDir), findErr)
		}
		file = latest.Path
	}
	export, err := excel.ReadInvoiceExport(file, cfg.ExportOptions())
	if errors.Is(err, common.ErrNoInvoiceData) {
		return common.NewUserError("The export has no lines for the required contracts", err)
	}
	if err != nil {
		return fmt.Errorf("failed to read invoice export: %w", err)
	}
	progress.Step()

	progress.Describe("Reading reference")
	reference, refErr := excel.ReadReference(cfg.Paths.Reference)
	if refErr != nil {
		slog.Warn("MMP reference table unavailable", "path", cfg.Paths.Reference, "error", refErr)
	}
	progress.Step()

	// Process
	progress.Describe("Processing")
	report, err := eng.Process(ctx, engine.Input{
		SourceFile:   export.Path,
		Period:       export.Period,
		RunID:        uuid.NewString(),
		Lines:        export.Lines,
		Reference:    reference,
		ReferenceErr: refErr,
	})
	if err != nil {
		return interrupted(interrupts, err)
	}
	progress.Step()

	// Publish
	progress.Describe("Publishing")
	xlsx := excel.NewReportWriter(cfg.Paths.OutputDir)
	writers := []service.ReportWriter{xlsx}

	if cfg.Archive.Enabled && !noArchive {
		store, storeErr := initStorage(ctx, cfg)
		if storeErr != nil {
			return fmt.Errorf("failed to open run archive: %w", storeErr)
		}
		defer func() { _ = store.Close() }()
		writers = append(writers, store)
	}

	if publishSheets {
		sheetsCfg, cfgErr := config.LoadSheetsConfig()
		if cfgErr != nil {
			return common.NewUserError("Google Sheets is not configured", cfgErr)
		}
		writer, writerErr := sheets.NewWriter(ctx, *sheetsCfg, slog.Default())
		if writerErr != nil {
			return fmt.Errorf("failed to connect to Google Sheets: %w", writerErr)
		}
		writers = append(writers, writer)
	}

	interrupts.Publishing()
	if err := engine.Publish(ctx, report, writers...); err != nil {
		return interrupted(interrupts, fmt.Errorf("failed to publish report: %w", err))
	}
	progress.Step()
	progress.Finish()

	paths := xlsx.Paths(report.Period)
	fmt.Println(cli.RenderReport(report))
	fmt.Println(cli.FormatSuccess("Invoice report written to " + paths.InvoiceReport))
	if report.Allocation != nil {
		fmt.Println(cli.FormatSuccess("MMP allocation written to " + paths.MMPAllocation))
	}
	if cfg.Archive.Enabled && !noArchive {
		fmt.Println(cli.FormatInfo("Archived as run " + report.RunID))
	}

	return nil
}

// interrupted reports err as a user-facing interruption when the run was
// canceled by a signal.
func interrupted(h *cli.InterruptHandler, err error) error {
	if h.WasInterrupted() {
		return common.NewUserError("Run interrupted", err)
	}
	return err
}
