// Package files locates raw invoice exports and lays out the processed
// report folders.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/invoice-report/internal/common"
)

// FileInfo describes a discovered export file.
type FileInfo struct {
	ModTime time.Time
	Path    string
	Name    string
	Size    int64
}

// FindExcelFiles lists the .xlsx files in dir, oldest first. Excel's "~$"
// lock files are skipped.
func FindExcelFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".xlsx") || strings.HasPrefix(name, "~$") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Path:    filepath.Join(dir, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})

	return files, nil
}

// FindLatest returns the most recently modified export in dir.
func FindLatest(dir string) (FileInfo, error) {
	files, err := FindExcelFiles(dir)
	if err != nil {
		return FileInfo{}, err
	}
	if len(files) == 0 {
		return FileInfo{}, fmt.Errorf("%w in %s", common.ErrNoInvoiceFiles, dir)
	}
	return files[len(files)-1], nil
}
