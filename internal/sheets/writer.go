package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Writer publishes reports to a Google spreadsheet. It implements
// service.ReportWriter.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newWriter(config, service, logger), nil
}

func newWriter(config Config, service *sheets.Service, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		config:  config,
		service: service,
		logger:  logger,
	}
}

// Name identifies the writer in logs and errors.
func (w *Writer) Name() string {
	return "google-sheets"
}

// Write replaces the Summary, Flags and MMP Allocation tabs with the report.
func (w *Writer) Write(ctx context.Context, report *model.Report) error {
	tabs := PrepareTabs(report)

	w.logger.Info("starting report publication",
		"period", report.Period,
		"tabs", len(tabs))

	titles := make([]string, len(tabs))
	for i, tab := range tabs {
		titles[i] = tab.Title
	}

	spreadsheetID, sheetIDs, err := w.getOrCreateSpreadsheet(ctx, titles)
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	retryOpts := common.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	rows := 0
	for _, tab := range tabs {
		err = common.WithRetry(ctx, func() error {
			if clearErr := w.clearTab(ctx, spreadsheetID, tab.Title); clearErr != nil {
				return fmt.Errorf("failed to clear tab: %w", clearErr)
			}
			return w.writeData(ctx, spreadsheetID, tab)
		}, retryOpts)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", tab.Title, err)
		}
		rows += len(tab.Values)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return w.applyFormatting(ctx, spreadsheetID, tabs, sheetIDs)
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic; the data is already written.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("report publication completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", rows)

	return nil
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet returns the target spreadsheet and the sheet ID of
// every requested tab, adding tabs that do not exist yet.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context, titles []string) (string, map[string]int64, error) {
	if w.config.SpreadsheetID == "" {
		return w.createSpreadsheet(ctx, titles)
	}

	existing, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
	}

	sheetIDs := make(map[string]int64, len(titles))
	for _, sheet := range existing.Sheets {
		if sheet.Properties != nil {
			sheetIDs[sheet.Properties.Title] = sheet.Properties.SheetId
		}
	}

	var requests []*sheets.Request
	for _, title := range titles {
		if _, ok := sheetIDs[title]; ok {
			continue
		}
		requests = append(requests, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		})
	}
	if len(requests) == 0 {
		return w.config.SpreadsheetID, sheetIDs, nil
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(w.config.SpreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to add tabs: %w", err)
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			sheetIDs[reply.AddSheet.Properties.Title] = reply.AddSheet.Properties.SheetId
		}
	}

	w.logger.Debug("added missing tabs", "count", len(requests))
	return w.config.SpreadsheetID, sheetIDs, nil
}

func (w *Writer) createSpreadsheet(ctx context.Context, titles []string) (string, map[string]int64, error) {
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
	}
	for _, title := range titles {
		spreadsheet.Sheets = append(spreadsheet.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: title},
		})
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	sheetIDs := make(map[string]int64, len(created.Sheets))
	for _, sheet := range created.Sheets {
		if sheet.Properties != nil {
			sheetIDs[sheet.Properties.Title] = sheet.Properties.SheetId
		}
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, sheetIDs, nil
}

func (w *Writer) clearTab(ctx context.Context, spreadsheetID, title string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, tabRange(title, "A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// writeData writes a tab in batches to stay under the API payload limits.
func (w *Writer) writeData(ctx context.Context, spreadsheetID string, tab Tab) error {
	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(tab.Values)
	}

	for i := 0; i < len(tab.Values); i += batchSize {
		end := min(i+batchSize, len(tab.Values))

		batch := tab.Values[i:end]
		valueRange := &sheets.ValueRange{
			Values: batch,
		}

		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, tabRange(tab.Title, fmt.Sprintf("A%d", i+1)), valueRange).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "tab", tab.Title, "start_row", i+1, "rows", len(batch))
	}

	return nil
}

// applyFormatting colors the header rows, formats currency and percentage
// columns and freezes the header of every tab.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, tabs []Tab, sheetIDs map[string]int64) error {
	var requests []*sheets.Request
	for _, tab := range tabs {
		sheetID, ok := sheetIDs[tab.Title]
		if !ok {
			continue
		}
		requests = append(requests, formatRequests(sheetID, tab)...)
	}
	if len(requests) == 0 {
		return nil
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}

func formatRequests(sheetID int64, tab Tab) []*sheets.Request {
	totalRows := int64(len(tab.Values))
	width := int64(0)
	for _, row := range tab.Values {
		width = max(width, int64(len(row)))
	}

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   width,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: &sheets.Color{
							Red:   tab.HeaderColor[0],
							Green: tab.HeaderColor[1],
							Blue:  tab.HeaderColor[2],
						},
						HorizontalAlignment: "CENTER",
						TextFormat:          &sheets.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: sheetID,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount: 1,
					},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   width,
				},
			},
		},
	}

	for _, col := range tab.CurrencyColumns {
		requests = append(requests, numberFormatRequest(sheetID, totalRows, col, "CURRENCY", "$#,##0.00"))
	}
	for _, col := range tab.PercentColumns {
		requests = append(requests, numberFormatRequest(sheetID, totalRows, col, "PERCENT", "0.00%"))
	}

	return requests
}

func numberFormatRequest(sheetID, totalRows, col int64, kind, pattern string) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    1,
				EndRowIndex:      totalRows,
				StartColumnIndex: col,
				EndColumnIndex:   col + 1,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					NumberFormat: &sheets.NumberFormat{
						Type:    kind,
						Pattern: pattern,
					},
				},
			},
			Fields: "userEnteredFormat.numberFormat",
		},
	}
}

// tabRange builds an A1 range scoped to a tab, quoting the title.
func tabRange(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", title, cells)
}
