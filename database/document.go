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

// MaxImportDocumentSeq returns the highest numeric document sequence ever
// assigned. Document names are the zero-padded form of this sequence, so the
// cast strips the padding back off.
func (d Datasource) MaxImportDocumentSeq(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(CAST(document_id AS BIGINT)), 0) FROM pos_import_documents
	`).Scan(&maxSeq)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read document sequence", err)
	}
	return maxSeq, nil
}

// InsertImportDocuments persists documents with their embedded item lines.
// Documents are grouped into chunks of chunkSize and each chunk commits
// independently; a document and its items always share a transaction.
func (d Datasource) InsertImportDocuments(ctx context.Context, docs []*model.ImportDocument, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	for start := 0; start < len(docs); start += chunkSize {
		end := start + chunkSize
		if end > len(docs) {
			end = len(docs)
		}

		tx, err := d.Conn.BeginTx(ctx, nil)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
		}
		for _, doc := range docs[start:end] {
			if err := insertImportDocumentTx(ctx, tx, doc); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit import documents", err)
		}
	}
	return nil
}

func insertImportDocumentTx(ctx context.Context, tx *sql.Tx, doc *model.ImportDocument) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pos_import_documents (document_id, batch_id, invoice_key, market_id,
			market_description, nielsen_code, pos_no, receipt_no, pos_profile,
			posting_date, posting_time, invoice_total, total_quantity, invoice_amount,
			actual_quantity, net_value, billing_type, payment_method, docstatus, status,
			rejected_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, doc.DocumentID, doc.BatchID, doc.InvoiceKey, doc.MarketID,
		doc.MarketDescription, doc.NielsenCode, doc.PosNo, doc.ReceiptNo, doc.POSProfile,
		doc.PostingDate, doc.PostingTime, doc.DeclaredTotal, doc.DeclaredQuantity, doc.ComputedTotal,
		doc.ComputedQuantity, doc.NetValue, doc.BillingType, doc.PaymentMethod, doc.Docstatus, doc.Status,
		doc.RejectedReason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert import document", err)
	}

	for _, item := range doc.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pos_import_items (item_id, document_id, idx, checked_row_id, item_code,
				item_description, barcode, quantity, sales_price, discount_percent,
				discount_value, status, rejected_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, item.ItemID, doc.DocumentID, item.Idx, item.CheckedRowID, item.ItemCode,
			item.ItemDescription, item.Barcode, item.Quantity, item.SalesPrice, item.DiscountPercent,
			item.DiscountValue, item.Status, item.RejectedReason)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert import item", err)
		}
	}
	return nil
}

const importDocumentSelect = `
	SELECT document_id, batch_id, invoice_key, market_id, market_description,
		nielsen_code, pos_no, receipt_no, pos_profile, posting_date, posting_time,
		invoice_total, total_quantity, invoice_amount, actual_quantity, net_value,
		billing_type, payment_method, docstatus, status, COALESCE(rejected_reason, '')
	FROM pos_import_documents`

func scanImportDocument(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.ImportDocument, error) {
	doc := model.ImportDocument{}
	err := scanner.Scan(&doc.DocumentID, &doc.BatchID, &doc.InvoiceKey, &doc.MarketID, &doc.MarketDescription,
		&doc.NielsenCode, &doc.PosNo, &doc.ReceiptNo, &doc.POSProfile, &doc.PostingDate, &doc.PostingTime,
		&doc.DeclaredTotal, &doc.DeclaredQuantity, &doc.ComputedTotal, &doc.ComputedQuantity, &doc.NetValue,
		&doc.BillingType, &doc.PaymentMethod, &doc.Docstatus, &doc.Status, &doc.RejectedReason)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetSubmittableDocuments retrieves draft documents that passed master data
// checks, ordered by posting date and time so originals are finalized before
// the returns that reference them.
func (d Datasource) GetSubmittableDocuments(ctx context.Context) ([]*model.ImportDocument, error) {
	rows, err := d.Conn.QueryContext(ctx, importDocumentSelect+`
		WHERE docstatus = $1 AND status = $2
		ORDER BY posting_date, posting_time, document_id
	`, model.DocstatusDraft, model.DocStatusMasterDataChecked)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve submittable documents", err)
	}
	defer rows.Close()

	docs := []*model.ImportDocument{}
	for rows.Next() {
		doc, err := scanImportDocument(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan import document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over documents", err)
	}

	for _, doc := range docs {
		items, err := d.getImportItems(ctx, doc.DocumentID)
		if err != nil {
			return nil, err
		}
		doc.Items = items
	}
	return docs, nil
}

// GetImportDocument retrieves one document with its item lines.
func (d Datasource) GetImportDocument(ctx context.Context, id string) (*model.ImportDocument, error) {
	row := d.Conn.QueryRowContext(ctx, importDocumentSelect+` WHERE document_id = $1`, id)
	doc, err := scanImportDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Import document not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve import document", err)
	}
	items, err := d.getImportItems(ctx, doc.DocumentID)
	if err != nil {
		return nil, err
	}
	doc.Items = items
	return doc, nil
}

// GetDocumentsByInvoiceKey retrieves every document carrying the invoice key,
// across all batches, newest first. The submission loop uses this to resolve
// duplicate precedence.
func (d Datasource) GetDocumentsByInvoiceKey(ctx context.Context, key string) ([]*model.ImportDocument, error) {
	rows, err := d.Conn.QueryContext(ctx, importDocumentSelect+`
		WHERE invoice_key = $1
		ORDER BY created_at DESC, document_id DESC
	`, key)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve documents by invoice key", err)
	}
	defer rows.Close()

	docs := []*model.ImportDocument{}
	for rows.Next() {
		doc, err := scanImportDocument(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan import document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over documents", err)
	}
	return docs, nil
}

// UpdateImportDocumentStatus persists a status transition. Runs outside any
// surrounding transaction so each transition is its own commit and survives a
// later crash in the same submission pass.
func (d Datasource) UpdateImportDocumentStatus(ctx context.Context, id, status, reason string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE pos_import_documents
		SET status = $1, rejected_reason = $2, modified_at = NOW()
		WHERE document_id = $3
	`, status, reason, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update document status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update count", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Import document %s not found", id), nil)
	}
	return nil
}

// SetImportDocumentDocstatus updates the framework-level document state.
func (d Datasource) SetImportDocumentDocstatus(ctx context.Context, id string, docstatus int) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE pos_import_documents SET docstatus = $1, modified_at = NOW()
		WHERE document_id = $2
	`, docstatus, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update docstatus", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update count", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Import document %s not found", id), nil)
	}
	return nil
}

func (d Datasource) getImportItems(ctx context.Context, documentID string) ([]model.ImportItem, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT item_id, document_id, idx, checked_row_id, item_code, item_description,
			barcode, quantity, sales_price, discount_percent, discount_value, status,
			COALESCE(rejected_reason, '')
		FROM pos_import_items
		WHERE document_id = $1
		ORDER BY idx
	`, documentID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve import items", err)
	}
	defer rows.Close()

	items := []model.ImportItem{}
	for rows.Next() {
		item := model.ImportItem{}
		err := rows.Scan(&item.ItemID, &item.DocumentID, &item.Idx, &item.CheckedRowID, &item.ItemCode,
			&item.ItemDescription, &item.Barcode, &item.Quantity, &item.SalesPrice, &item.DiscountPercent,
			&item.DiscountValue, &item.Status, &item.RejectedReason)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan import item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over import items", err)
	}
	return items, nil
}
