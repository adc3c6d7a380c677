package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/kcsc/posbridge/model"
)

func TestInsertSalesInvoice_AllPartsOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	invoice := &model.SalesInvoice{
		InvoiceID:   model.GenerateUUIDWithSuffix("siv"),
		POSProfile:  "Market A-2",
		Customer:    "Walk-in",
		PostingDate: "2026-01-15",
		PostingTime: "10:30:00",
		GrandTotal:  decimal.NewFromFloat(21.00),
		Items: []model.SalesInvoiceItem{
			{Idx: 1, ItemCode: "111", Qty: decimal.NewFromInt(2), Rate: decimal.NewFromFloat(10.50)},
		},
		Payments: []model.SalesInvoicePayment{
			{ModeOfPayment: "Cash", Amount: decimal.NewFromFloat(21.00)},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sales_invoices").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sales_invoice_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sales_invoice_payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = ds.InsertSalesInvoice(context.Background(), invoice)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitSalesInvoice_AlreadySubmitted(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE sales_invoices").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.SubmitSalesInvoice(context.Background(), "siv_1")
	assert.Error(t, err)
}

func TestFindOriginalInvoice(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	headerCols := []string{"invoice_id", "pos_profile", "customer", "warehouse", "posting_date",
		"posting_time", "import_document_id", "market_id", "pos_no", "receipt_no",
		"is_return", "return_against", "docstatus", "grand_total"}
	mock.ExpectQuery("SELECT invoice_id").
		WithArgs("M001", "2", "1001", model.DocstatusCancelled).
		WillReturnRows(sqlmock.NewRows(headerCols).
			AddRow("siv_1", "Market A-2", "Walk-in", "WH-1", "2026-01-15", "10:30:00",
				"000000000000000001", "M001", "2", "1001", false, "", 1, "21.00"))
	itemCols := []string{"invoice_id", "idx", "item_code", "description", "barcode",
		"qty", "rate", "price_list_rate", "discount_percentage", "checked_row_id"}
	mock.ExpectQuery("SELECT invoice_id, idx").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("siv_1", 1, "111", "Item", "", "2", "10.50", "10.50", "0", 1))

	invoice, err := ds.FindOriginalInvoice(context.Background(), "M001", "2", "1001")
	assert.NoError(t, err)
	assert.Equal(t, "siv_1", invoice.InvoiceID)
	assert.Equal(t, model.DocstatusSubmitted, invoice.Docstatus)
	assert.Len(t, invoice.Items, 1)
}

func TestFindOriginalInvoice_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	headerCols := []string{"invoice_id", "pos_profile", "customer", "warehouse", "posting_date",
		"posting_time", "import_document_id", "market_id", "pos_no", "receipt_no",
		"is_return", "return_against", "docstatus", "grand_total"}
	mock.ExpectQuery("SELECT invoice_id").
		WillReturnRows(sqlmock.NewRows(headerCols))

	_, err = ds.FindOriginalInvoice(context.Background(), "M001", "2", "9999")
	assert.Error(t, err)
}
