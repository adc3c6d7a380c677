/*
Copyright 2025 KCSC Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kcsc/posbridge/internal/apierror"
	"github.com/kcsc/posbridge/model"
)

// insertPageSize caps the rows packed into one multi-row INSERT so the bind
// parameter count stays well under the Postgres wire limit. A commit chunk
// may span several pages; the transaction boundary is the chunk, not the
// page.
const insertPageSize = 500

// MaxRawRowID returns the highest raw row identifier ever assigned, so
// intake can continue the sequence across restarts.
func (d Datasource) MaxRawRowID(ctx context.Context) (int64, error) {
	var maxID int64
	err := d.Conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(row_id), 0) FROM pos_raw_rows`).Scan(&maxID)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read raw row sequence", err)
	}
	return maxID, nil
}

// PurgeRawRows deletes the batch's raw rows that sit in any of the given
// statuses and returns the number removed.
func (d Datasource) PurgeRawRows(ctx context.Context, batchID string, statuses []string) (int64, error) {
	res, err := d.Conn.ExecContext(ctx, `
		DELETE FROM pos_raw_rows
		WHERE batch_id = $1 AND status = ANY($2)
	`, batchID, pq.Array(statuses))
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to purge raw rows", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read purge count", err)
	}
	return affected, nil
}

// CommittedInvoiceKeys reports which of the given invoice keys already belong
// to a successfully committed import document. The lookup is global across
// batches; a receipt committed by an earlier file is a duplicate no matter
// which batch re-delivers it.
func (d Datasource) CommittedInvoiceKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	committed := map[string]bool{}
	if len(keys) == 0 {
		return committed, nil
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT DISTINCT invoice_key
		FROM pos_import_documents
		WHERE invoice_key = ANY($1) AND status = $2
	`, pq.Array(keys), model.DocStatusSuccessful)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to look up committed invoices", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan invoice key", err)
		}
		committed[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over invoice keys", err)
	}
	return committed, nil
}

var rawRowColumns = []string{
	"row_id", "batch_id", "invoice_pk", "market_id", "nielsen_code", "market_description",
	"date_timestamp", "day", "year", "receipt_no", "pos_no", "item_code", "barcode",
	"item_description", "sales_price", "quantity", "discount_percent", "discount_value",
	"total_price", "invoice_total", "total_quantity", "payment_method", "date_description",
	"billing_type", "status",
}

func rawRowValues(r *model.RawRow) []interface{} {
	return []interface{}{
		r.RowID, r.BatchID, r.InvoicePK, r.MarketID, r.NielsenCode, r.MarketDescription,
		r.DateTimestamp, r.Day, r.Year, r.ReceiptNo, r.PosNo, r.ItemCode, r.Barcode,
		r.ItemDescription, r.SalesPrice, r.Quantity, r.DiscountPercent, r.DiscountValue,
		r.TotalPrice, r.InvoiceTotal, r.TotalQuantity, r.PaymentMethod, r.DateDescription,
		r.BillingType, r.Status,
	}
}

// InsertRawRows bulk-inserts raw rows in chunks of chunkSize, each chunk
// committed independently so a failure partway through a large file keeps
// the chunks already committed. A partial final chunk commits on its own.
func (d Datasource) InsertRawRows(ctx context.Context, rows []*model.RawRow, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		tx, err := d.Conn.BeginTx(ctx, nil)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
		}
		for page := 0; page < len(chunk); page += insertPageSize {
			pageEnd := page + insertPageSize
			if pageEnd > len(chunk) {
				pageEnd = len(chunk)
			}
			query, args := buildMultiInsert("pos_raw_rows", rawRowColumns, len(chunk[page:pageEnd]))
			for _, r := range chunk[page:pageEnd] {
				args = append(args, rawRowValues(r)...)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				_ = tx.Rollback()
				return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert raw rows", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit raw rows", err)
		}
	}
	return nil
}

// buildMultiInsert assembles a multi-row INSERT statement with numbered
// placeholders and returns it with an args slice sized for appending.
func buildMultiInsert(table string, columns []string, rowCount int) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", ")))
	n := 1
	for i := 0; i < rowCount; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("$%d", n))
			n++
		}
		sb.WriteString(")")
	}
	return sb.String(), make([]interface{}, 0, rowCount*len(columns))
}

// GetRawRows retrieves the raw rows of one batch in row order. An empty
// batchID returns the whole buffer, which the quality stage uses to sweep
// rows stranded by an interrupted run.
func (d Datasource) GetRawRows(ctx context.Context, batchID string) ([]*model.RawRow, error) {
	query := `
		SELECT row_id, batch_id, invoice_pk, market_id, nielsen_code, market_description,
			date_timestamp, day, year, receipt_no, pos_no, item_code, barcode,
			item_description, sales_price, quantity, discount_percent, discount_value,
			total_price, invoice_total, total_quantity, payment_method, date_description,
			billing_type, status
		FROM pos_raw_rows`
	args := []interface{}{}
	if batchID != "" {
		query += ` WHERE batch_id = $1`
		args = append(args, batchID)
	}
	query += ` ORDER BY row_id`

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve raw rows", err)
	}
	defer rows.Close()

	result := []*model.RawRow{}
	for rows.Next() {
		r := model.RawRow{}
		err := rows.Scan(&r.RowID, &r.BatchID, &r.InvoicePK, &r.MarketID, &r.NielsenCode, &r.MarketDescription,
			&r.DateTimestamp, &r.Day, &r.Year, &r.ReceiptNo, &r.PosNo, &r.ItemCode, &r.Barcode,
			&r.ItemDescription, &r.SalesPrice, &r.Quantity, &r.DiscountPercent, &r.DiscountValue,
			&r.TotalPrice, &r.InvoiceTotal, &r.TotalQuantity, &r.PaymentMethod, &r.DateDescription,
			&r.BillingType, &r.Status)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan raw row", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over raw rows", err)
	}
	return result, nil
}

// MarkRawRowsLoaded flips the batch's New and Duplicate rows to Loaded once
// the quality stage has copied them forward. An empty batchID sweeps the
// whole buffer.
func (d Datasource) MarkRawRowsLoaded(ctx context.Context, batchID string) error {
	query := `UPDATE pos_raw_rows SET status = $1 WHERE status = ANY($2)`
	args := []interface{}{model.RowStatusLoaded, pq.Array([]string{model.RowStatusNew, model.RowStatusDuplicate})}
	if batchID != "" {
		query += ` AND batch_id = $3`
		args = append(args, batchID)
	}
	_, err := d.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark raw rows loaded", err)
	}
	return nil
}

// MaxCheckedRowID returns the highest checked row identifier ever assigned.
func (d Datasource) MaxCheckedRowID(ctx context.Context) (int64, error) {
	var maxID int64
	err := d.Conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(check_id), 0) FROM pos_checked_rows`).Scan(&maxID)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read checked row sequence", err)
	}
	return maxID, nil
}

var checkedRowColumns = []string{
	"check_id", "raw_row_id", "batch_id", "invoice_pk", "market_id", "nielsen_code",
	"market_description", "date_timestamp", "day", "year", "receipt_no", "pos_no",
	"item_code", "barcode", "item_description", "sales_price", "quantity",
	"discount_percent", "discount_value", "total_price", "invoice_total",
	"total_quantity", "payment_method", "date_description", "billing_type",
	"status", "rejected_reason", "imported",
}

func checkedRowValues(c *model.CheckedRow) []interface{} {
	return []interface{}{
		c.CheckID, c.RawRowID, c.BatchID, c.InvoicePK, c.MarketID, c.NielsenCode,
		c.MarketDescription, c.DateTimestamp, c.Day, c.Year, c.ReceiptNo, c.PosNo,
		c.ItemCode, c.Barcode, c.ItemDescription, c.SalesPrice, c.Quantity,
		c.DiscountPercent, c.DiscountValue, c.TotalPrice, c.InvoiceTotal,
		c.TotalQuantity, c.PaymentMethod, c.DateDescription, c.BillingType,
		c.Status, c.RejectedReason, c.Imported,
	}
}

// InsertCheckedRows bulk-inserts checked rows with the same chunked commit
// behavior as InsertRawRows.
func (d Datasource) InsertCheckedRows(ctx context.Context, rows []*model.CheckedRow, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		tx, err := d.Conn.BeginTx(ctx, nil)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
		}
		for page := 0; page < len(chunk); page += insertPageSize {
			pageEnd := page + insertPageSize
			if pageEnd > len(chunk) {
				pageEnd = len(chunk)
			}
			query, args := buildMultiInsert("pos_checked_rows", checkedRowColumns, len(chunk[page:pageEnd]))
			for _, c := range chunk[page:pageEnd] {
				args = append(args, checkedRowValues(c)...)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				_ = tx.Rollback()
				return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert checked rows", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit checked rows", err)
		}
	}
	return nil
}

// GetCheckedRowsForAggregation retrieves the batch's checked rows still
// awaiting document creation: quality-checked or rejected, and not yet
// flagged as imported. An empty batchID scans the whole buffer. Row order
// preserves receipt line order.
func (d Datasource) GetCheckedRowsForAggregation(ctx context.Context, batchID string) ([]*model.CheckedRow, error) {
	query := `
		SELECT check_id, raw_row_id, batch_id, invoice_pk, market_id, nielsen_code,
			market_description, date_timestamp, day, year, receipt_no, pos_no,
			item_code, barcode, item_description, sales_price, quantity,
			discount_percent, discount_value, total_price, invoice_total,
			total_quantity, payment_method, date_description, billing_type,
			status, rejected_reason, imported
		FROM pos_checked_rows
		WHERE imported = FALSE AND status = ANY($1)`
	args := []interface{}{pq.Array([]string{model.CheckStatusQualityChecked, model.CheckStatusRejected})}
	if batchID != "" {
		query += ` AND batch_id = $2`
		args = append(args, batchID)
	}
	query += ` ORDER BY check_id`

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve checked rows", err)
	}
	defer rows.Close()

	result := []*model.CheckedRow{}
	for rows.Next() {
		c := model.CheckedRow{}
		err := rows.Scan(&c.CheckID, &c.RawRowID, &c.BatchID, &c.InvoicePK, &c.MarketID, &c.NielsenCode,
			&c.MarketDescription, &c.DateTimestamp, &c.Day, &c.Year, &c.ReceiptNo, &c.PosNo,
			&c.ItemCode, &c.Barcode, &c.ItemDescription, &c.SalesPrice, &c.Quantity,
			&c.DiscountPercent, &c.DiscountValue, &c.TotalPrice, &c.InvoiceTotal,
			&c.TotalQuantity, &c.PaymentMethod, &c.DateDescription, &c.BillingType,
			&c.Status, &c.RejectedReason, &c.Imported)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan checked row", err)
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over checked rows", err)
	}
	return result, nil
}

// MarkCheckedRowsImported flags checked rows as consumed. Called only after
// the documents referencing them have committed, so a crash between the two
// writes re-processes rather than loses rows.
func (d Datasource) MarkCheckedRowsImported(ctx context.Context, checkIDs []int64) error {
	if len(checkIDs) == 0 {
		return nil
	}
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE pos_checked_rows SET imported = TRUE
		WHERE check_id = ANY($1)
	`, pq.Array(checkIDs))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark checked rows imported", err)
	}
	return nil
}

// UpdateCheckedRowStatus updates the status of one checked row.
func (d Datasource) UpdateCheckedRowStatus(ctx context.Context, checkID int64, status string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE pos_checked_rows SET status = $1 WHERE check_id = $2
	`, status, checkID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update checked row status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update count", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Checked row %d not found", checkID), nil)
	}
	return nil
}

// PurgeBatchStaging removes every staging row of a batch, raw and checked.
func (d Datasource) PurgeBatchStaging(ctx context.Context, batchID string) error {
	if _, err := d.Conn.ExecContext(ctx, `DELETE FROM pos_checked_rows WHERE batch_id = $1`, batchID); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to purge checked rows", err)
	}
	if _, err := d.Conn.ExecContext(ctx, `DELETE FROM pos_raw_rows WHERE batch_id = $1`, batchID); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to purge raw rows", err)
	}
	return nil
}
