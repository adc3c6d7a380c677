package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/kcsc/posbridge/model"
)

func TestInsertImportDocuments_DocAndItemsShareTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	doc := &model.ImportDocument{
		DocumentID:  model.FormatDocumentID(1),
		BatchID:     "batch_1",
		InvoiceKey:  "inv-1",
		BillingType: model.BillingTypeSale,
		Status:      model.DocStatusMasterDataChecked,
		Items: []model.ImportItem{
			{ItemID: "itm_1", Idx: 1, ItemCode: "111", Quantity: decimal.NewFromInt(2), SalesPrice: decimal.NewFromFloat(10.50), Status: model.ItemStatusChecked},
			{ItemID: "itm_2", Idx: 2, ItemCode: "222", Quantity: decimal.NewFromInt(1), SalesPrice: decimal.NewFromInt(5), Status: model.ItemStatusChecked},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pos_import_documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pos_import_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pos_import_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = ds.InsertImportDocuments(context.Background(), []*model.ImportDocument{doc}, 100)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmittableDocuments_PostingOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	cols := []string{"document_id", "batch_id", "invoice_key", "market_id", "market_description",
		"nielsen_code", "pos_no", "receipt_no", "pos_profile", "posting_date", "posting_time",
		"invoice_total", "total_quantity", "invoice_amount", "actual_quantity", "net_value",
		"billing_type", "payment_method", "docstatus", "status", "rejected_reason"}
	mock.ExpectQuery("SELECT document_id, batch_id").
		WithArgs(model.DocstatusDraft, model.DocStatusMasterDataChecked).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("000000000000000001", "batch_1", "inv-1", "M001", "Market A", "", "2", "1001",
				"Market A-2", "2026-01-15", "10:30:00", "21.00", "2", "21.00", "2", "21.00",
				"Sale", "Cash", 0, model.DocStatusMasterDataChecked, "").
			AddRow("000000000000000002", "batch_1", "inv-2", "M001", "Market A", "", "2", "1002",
				"Market A-2", "2026-01-15", "11:00:00", "5.00", "1", "5.00", "1", "5.00",
				"Return", "Cash", 0, model.DocStatusMasterDataChecked, ""))
	itemCols := []string{"item_id", "document_id", "idx", "checked_row_id", "item_code", "item_description",
		"barcode", "quantity", "sales_price", "discount_percent", "discount_value", "status", "rejected_reason"}
	mock.ExpectQuery("SELECT item_id, document_id").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("itm_1", "000000000000000001", 1, 1, "111", "Item", "", "2", "10.50", "0", "0", "Checked", ""))
	mock.ExpectQuery("SELECT item_id, document_id").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("itm_2", "000000000000000002", 1, 2, "222", "Item B", "", "1", "5.00", "0", "0", "Checked", ""))

	docs, err := ds.GetSubmittableDocuments(context.Background())
	assert.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, "inv-1", docs[0].InvoiceKey)
	assert.Len(t, docs[0].Items, 1)
	assert.True(t, docs[1].IsReturn())
}

func TestUpdateImportDocumentStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE pos_import_documents").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateImportDocumentStatus(context.Background(), "missing", model.DocStatusSuccessful, "")
	assert.Error(t, err)
}

func TestMaxImportDocumentSeq(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(17))

	seq, err := ds.MaxImportDocumentSeq(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(17), seq)
}
