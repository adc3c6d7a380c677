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
	"database/sql"
	"fmt"

	"github.com/kcsc/posbridge/internal/apierror"
	"github.com/kcsc/posbridge/model"
)

// InsertSalesInvoice persists a draft invoice with its items and payments in
// one transaction. The invoice either lands whole or not at all.
func (d Datasource) InsertSalesInvoice(ctx context.Context, invoice *model.SalesInvoice) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_invoices (invoice_id, pos_profile, customer, warehouse,
			posting_date, posting_time, import_document_id, market_id, pos_no,
			receipt_no, is_return, return_against, docstatus, grand_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, invoice.InvoiceID, invoice.POSProfile, invoice.Customer, invoice.Warehouse,
		invoice.PostingDate, invoice.PostingTime, invoice.ImportDocumentID, invoice.MarketID, invoice.PosNo,
		invoice.ReceiptNo, invoice.IsReturn, invoice.ReturnAgainst, invoice.Docstatus, invoice.GrandTotal)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert sales invoice", err)
	}

	for _, item := range invoice.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_invoice_items (invoice_id, idx, item_code, description, barcode,
				qty, rate, price_list_rate, discount_percentage, checked_row_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, invoice.InvoiceID, item.Idx, item.ItemCode, item.Description, item.Barcode,
			item.Qty, item.Rate, item.PriceListRate, item.DiscountPercentage, item.CheckedRowID)
		if err != nil {
			_ = tx.Rollback()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert sales invoice item", err)
		}
	}

	for _, payment := range invoice.Payments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_invoice_payments (invoice_id, mode_of_payment, amount)
			VALUES ($1, $2, $3)
		`, invoice.InvoiceID, payment.ModeOfPayment, payment.Amount)
		if err != nil {
			_ = tx.Rollback()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert sales invoice payment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit sales invoice", err)
	}
	return nil
}

// SubmitSalesInvoice finalizes a draft invoice. Submitting an already
// finalized or missing invoice is an error; submission is a one-way edge.
func (d Datasource) SubmitSalesInvoice(ctx context.Context, invoiceID string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE sales_invoices SET docstatus = $1
		WHERE invoice_id = $2 AND docstatus = $3
	`, model.DocstatusSubmitted, invoiceID, model.DocstatusDraft)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to submit sales invoice", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read submit count", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Draft sales invoice %s not found", invoiceID), nil)
	}
	return nil
}

// FindOriginalInvoice locates the forward sale for the given receipt, with
// its item lines, so a return can reference and mirror it. Submitted
// invoices win over drafts; the caller finalizes a draft original before
// posting the return against it.
func (d Datasource) FindOriginalInvoice(ctx context.Context, marketID, posNo, receiptNo string) (*model.SalesInvoice, error) {
	invoice := model.SalesInvoice{}
	row := d.Conn.QueryRowContext(ctx, `
		SELECT invoice_id, COALESCE(pos_profile, ''), COALESCE(customer, ''), COALESCE(warehouse, ''),
			COALESCE(posting_date, ''), COALESCE(posting_time, ''), COALESCE(import_document_id, ''),
			COALESCE(market_id, ''), COALESCE(pos_no, ''), COALESCE(receipt_no, ''),
			is_return, COALESCE(return_against, ''), docstatus, grand_total
		FROM sales_invoices
		WHERE market_id = $1 AND pos_no = $2 AND receipt_no = $3
			AND is_return = FALSE AND docstatus != $4
		ORDER BY docstatus DESC, created_at DESC
		LIMIT 1
	`, marketID, posNo, receiptNo, model.DocstatusCancelled)
	err := row.Scan(&invoice.InvoiceID, &invoice.POSProfile, &invoice.Customer, &invoice.Warehouse,
		&invoice.PostingDate, &invoice.PostingTime, &invoice.ImportDocumentID,
		&invoice.MarketID, &invoice.PosNo, &invoice.ReceiptNo,
		&invoice.IsReturn, &invoice.ReturnAgainst, &invoice.Docstatus, &invoice.GrandTotal)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Original invoice not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve original invoice", err)
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT invoice_id, idx, COALESCE(item_code, ''), COALESCE(description, ''), COALESCE(barcode, ''),
			qty, rate, price_list_rate, discount_percentage, COALESCE(checked_row_id, 0)
		FROM sales_invoice_items
		WHERE invoice_id = $1
		ORDER BY idx
	`, invoice.InvoiceID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve original invoice items", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := model.SalesInvoiceItem{}
		err := rows.Scan(&item.InvoiceID, &item.Idx, &item.ItemCode, &item.Description, &item.Barcode,
			&item.Qty, &item.Rate, &item.PriceListRate, &item.DiscountPercentage, &item.CheckedRowID)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan original invoice item", err)
		}
		invoice.Items = append(invoice.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over invoice items", err)
	}
	return &invoice, nil
}
