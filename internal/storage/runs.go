package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/Veraticus/invoice-report/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaveRun archives a report in one transaction: the run headline, its
// category totals, its flagged lines and its allocation. A report without a
// RunID is given a new UUID.
func (s *SQLiteStorage) SaveRun(ctx context.Context, report *model.Report) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReport(report); err != nil {
		return err
	}

	runID := report.RunID
	if runID == "" {
		runID = uuid.NewString()
		report.RunID = runID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertRun(ctx, tx, runID, report); err != nil {
		return err
	}
	if err = insertTotals(ctx, tx, runID, report.Totals); err != nil {
		return err
	}
	if err = insertFlagged(ctx, tx, runID, model.FlaggedLines(report.Lines)); err != nil {
		return err
	}
	if report.Allocation != nil {
		if err = insertAllocations(ctx, tx, runID, report.Allocation.Results); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, runID string, report *model.Report) error {
	charts, subset, adjusted := decimal.Zero, decimal.Zero, decimal.Zero
	if a := report.Allocation; a != nil {
		charts, subset, adjusted = a.ChartsTotal, a.SubsetAmount, a.AdjustedAmount
	}
	allocErr := ""
	if report.AllocationErr != nil {
		allocErr = report.AllocationErr.Error()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, period, source_file, line_count, flagged_count,
			warning_count, grand_total, charts_total, subset_amount,
			adjusted_amount, allocation_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		report.GeneratedAt.UTC(),
		report.Period,
		report.SourceFile,
		len(report.Lines),
		len(model.FlaggedLines(report.Lines)),
		len(report.Warnings),
		report.GrandTotal().String(),
		charts.String(),
		subset.String(),
		adjusted.String(),
		allocErr,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func insertTotals(ctx context.Context, tx *sql.Tx, runID string, totals map[string]model.CategoryTotal) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO category_totals (run_id, category, total, line_count)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, total := range model.SortedTotals(totals) {
		if _, err := stmt.ExecContext(ctx, runID, total.Category, total.TotalAmount.String(), total.LineCount); err != nil {
			return fmt.Errorf("failed to insert total for %q: %w", total.Category, err)
		}
	}
	return nil
}

func insertFlagged(ctx context.Context, tx *sql.Tx, runID string, lines []model.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flagged_lines (
			run_id, row_num, invoice_id, source, contract, line_descr,
			journal_date, amount, ap_amount, category, flags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, line := range lines {
		_, err := stmt.ExecContext(ctx,
			runID,
			line.Row,
			line.InvoiceID,
			string(line.Source),
			string(line.Contract),
			line.LineDescr,
			line.JournalDate.UTC(),
			line.Amount.String(),
			line.APAmount.String(),
			line.Category,
			line.Flags.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert flagged row %d: %w", line.Row, err)
		}
	}
	return nil
}

func insertAllocations(ctx context.Context, tx *sql.Tx, runID string, results []model.AllocationResult) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO allocations (run_id, position, state, contract, pct, amount)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range results {
		if _, err := stmt.ExecContext(ctx, runID, i, r.State, string(r.Contract), r.PctOfPayments.String(), r.AllocatedAmount.String()); err != nil {
			return fmt.Errorf("failed to insert allocation for %s: %w", r.State, err)
		}
	}
	return nil
}

const runColumns = `
	id, created_at, period, source_file, line_count, flagged_count,
	warning_count, grand_total, charts_total, subset_amount,
	adjusted_amount, allocation_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (service.RunSummary, error) {
	var r service.RunSummary
	err := row.Scan(
		&r.ID,
		&r.CreatedAt,
		&r.Period,
		&r.SourceFile,
		&r.LineCount,
		&r.FlaggedCount,
		&r.WarningCount,
		&r.GrandTotal,
		&r.ChartsTotal,
		&r.SubsetAmount,
		&r.Adjusted,
		&r.AllocationErr,
	)
	return r, err
}

// ListRuns returns archived runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, filter service.RunFilter) ([]service.RunSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Period != "" {
		where = append(where, "period = ?")
		args = append(args, filter.Period)
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []service.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// GetRun loads one archived run with its totals, flagged lines and
// allocation. It returns common.ErrNotFound for an unknown id.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*service.ArchivedRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	summary, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run := &service.ArchivedRun{RunSummary: summary}

	if run.Totals, err = s.getTotals(ctx, id); err != nil {
		return nil, err
	}
	if run.Flagged, err = s.getFlagged(ctx, id); err != nil {
		return nil, err
	}
	if run.Allocations, err = s.getAllocations(ctx, id); err != nil {
		return nil, err
	}

	return run, nil
}

func (s *SQLiteStorage) getTotals(ctx context.Context, runID string) ([]model.CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, total, line_count
		FROM category_totals
		WHERE run_id = ?
		ORDER BY category`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var totals []model.CategoryTotal
	for rows.Next() {
		var t model.CategoryTotal
		if err := rows.Scan(&t.Category, &t.TotalAmount, &t.LineCount); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (s *SQLiteStorage) getFlagged(ctx context.Context, runID string) ([]model.InvoiceLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_num, invoice_id, source, contract, line_descr,
		       journal_date, amount, ap_amount, category, flags
		FROM flagged_lines
		WHERE run_id = ?
		ORDER BY row_num, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flagged lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.InvoiceLine
	for rows.Next() {
		var (
			line     model.InvoiceLine
			source   string
			contract string
			flags    string
			date     sql.NullTime
		)
		err := rows.Scan(
			&line.Row,
			&line.InvoiceID,
			&source,
			&contract,
			&line.LineDescr,
			&date,
			&line.Amount,
			&line.APAmount,
			&line.Category,
			&flags,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flagged line: %w", err)
		}

		line.Source = model.Source(source)
		line.Contract = model.Contract(contract)
		if date.Valid {
			line.JournalDate = date.Time
		}
		for _, kind := range strings.Split(flags, ",") {
			if kind = strings.TrimSpace(kind); kind != "" {
				line.Flags.Add(model.FlagKind(kind))
			}
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *SQLiteStorage) getAllocations(ctx context.Context, runID string) ([]model.AllocationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, contract, pct, amount
		FROM allocations
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.AllocationResult
	for rows.Next() {
		var (
			r        model.AllocationResult
			contract string
		)
		if err := rows.Scan(&r.State, &contract, &r.PctOfPayments, &r.AllocatedAmount); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		r.Contract = model.Contract(contract)
		results = append(results, r)
	}
	return results, rows.Err()
}
