package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/files"
	"github.com/Veraticus/invoice-report/internal/service"
	"github.com/Veraticus/invoice-report/internal/storage"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func saveWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

type fixture struct {
	rawDir    string
	outputDir string
	reference string
	archive   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := t.TempDir()
	fx := fixture{
		rawDir:    filepath.Join(root, "raw_data"),
		outputDir: filepath.Join(root, "processed_reports"),
		reference: filepath.Join(root, "MMP_Reclass_Ref.xlsx"),
		archive:   filepath.Join(root, "runs.db"),
	}

	april := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.MkdirAll(fx.rawDir, 0o750))
	saveWorkbook(t, filepath.Join(fx.rawDir, "export.xlsx"), [][]any{
		{"PeopleSoft Invoice Export"},
		{"Journal Date", "Invoice", "Source", "Contract", "Line Descr", "Amount", "AP Amount"},
		{april, "INV-1", "AP2", 1111, "Chart review", 100, 100},
		{april, "INV-2", "AP2", 1111, "Chart review credit", -50, -50},
		{april, "INV-3", "COR", 2222, "Coupa", 20, nil},
		{april, "INV-4", "AP2", 2222, "MSG Chart Expense", 99, 99},
	})
	saveWorkbook(t, fx.reference, [][]any{
		{"State", "Contract", "% of Payments"},
		{"CA", 1111, 0.6},
		{"NY", 1111, 0.3},
		{"Total", nil, 1},
		{"MMP", "Subset", 0.1},
	})

	viper.Set("archive.path", fx.archive)
	return fx
}

func (fx fixture) run(t *testing.T, extra ...string) error {
	t.Helper()
	return fx.runContext(t, context.Background(), extra...)
}

func (fx fixture) runContext(t *testing.T, ctx context.Context, extra ...string) error {
	t.Helper()
	cmd := runCmd()
	cmd.SetArgs(append([]string{
		"--raw-dir", fx.rawDir,
		"--output-dir", fx.outputDir,
		"--reference", fx.reference,
		"--no-progress",
	}, extra...))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(ctx)
}

func TestRunCommand(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.run(t))

	paths := files.NewReportPaths(fx.outputDir, "2025_04")
	assert.FileExists(t, paths.InvoiceReport)
	assert.FileExists(t, paths.MMPAllocation)

	store, err := storage.NewSQLiteStorage(fx.archive)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(context.Background(), service.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "2025_04", runs[0].Period)
	assert.Equal(t, 3, runs[0].LineCount)
	assert.Equal(t, "50", runs[0].ChartsTotal.String())
	assert.Equal(t, "5", runs[0].SubsetAmount.String())
	assert.Empty(t, runs[0].AllocationErr)

	run, err := store.GetRun(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, run.Allocations, 3)
	assert.Equal(t, "CA", run.Allocations[0].State)
	assert.Equal(t, "30", run.Allocations[0].AllocatedAmount.String())
}

func TestRunCommand_MissingReference(t *testing.T) {
	fx := newFixture(t)
	fx.reference = filepath.Join(t.TempDir(), "missing.xlsx")
	require.NoError(t, fx.run(t, "--no-archive"))

	paths := files.NewReportPaths(fx.outputDir, "2025_04")
	assert.FileExists(t, paths.InvoiceReport)
	assert.NoFileExists(t, paths.MMPAllocation)
	assert.NoFileExists(t, fx.archive)
}

func TestRunCommand_Interrupted(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fx.runContext(t, ctx, "--no-archive")
	require.Error(t, err)

	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "Run interrupted", userErr.UserMessage)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, files.NewReportPaths(fx.outputDir, "2025_04").InvoiceReport)
}

func TestRunCommand_NoExports(t *testing.T) {
	fx := newFixture(t)
	fx.rawDir = t.TempDir()

	err := fx.run(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No invoice export found")
}

func TestHistoryCommand(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.run(t))

	var out bytes.Buffer
	cmd := historyCmd()
	cmd.SetArgs([]string{"--period", "2025_04"})
	cmd.SetOut(&out)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "2025_04")
	assert.Contains(t, out.String(), "$5.00")

	out.Reset()
	cmd = historyCmd()
	cmd.SetArgs([]string{"show", "no-such-run"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No archived run with id no-such-run")
}
