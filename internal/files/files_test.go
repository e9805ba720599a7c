package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	touch(t, dir, "march.xlsx", base.Add(-48*time.Hour))
	touch(t, dir, "april.XLSX", base)
	touch(t, dir, "~$april.xlsx", base.Add(time.Hour))
	touch(t, dir, "notes.csv", base.Add(2*time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "newer.xlsx"), 0o750))

	latest, err := FindLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, "april.XLSX", latest.Name)
	assert.Equal(t, filepath.Join(dir, "april.XLSX"), latest.Path)

	all, err := FindExcelFiles(dir)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "march.xlsx", all[0].Name)
}

func TestFindLatest_TieBreaksByName(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	touch(t, dir, "b.xlsx", mod)
	touch(t, dir, "a.xlsx", mod)

	latest, err := FindLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, "b.xlsx", latest.Name)
}

func TestFindLatest_NoFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "readme.txt", time.Now())

	_, err := FindLatest(dir)
	assert.ErrorIs(t, err, common.ErrNoInvoiceFiles)

	_, err = FindLatest(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestReportPaths(t *testing.T) {
	period := Period(time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025_04", period)

	root := t.TempDir()
	paths := NewReportPaths(root, period)
	assert.Equal(t, filepath.Join(root, "2025_04", "Invoice_Report_2025_04.xlsx"), paths.InvoiceReport)
	assert.Equal(t, filepath.Join(root, "2025_04", "MMP_Reclass_Allocations_2025_04.xlsx"), paths.MMPAllocation)

	require.NoError(t, paths.EnsureDir())
	info, err := os.Stat(paths.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
