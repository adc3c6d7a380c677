package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"github.com/kcsc/posbridge/model"
)

func fakeRawRow(id int64, batchID string) *model.RawRow {
	return &model.RawRow{
		RowID:             id,
		BatchID:           batchID,
		InvoicePK:         fmt.Sprintf("inv-%d", id),
		MarketID:          "M001",
		MarketDescription: gofakeit.Company(),
		DateTimestamp:     "2026-01-15 10:30:00",
		Day:               "2026-01-15",
		Year:              "2026",
		ReceiptNo:         fmt.Sprintf("%d", 1000+id),
		PosNo:             "2",
		ItemCode:          gofakeit.DigitN(6),
		ItemDescription:   gofakeit.ProductName(),
		SalesPrice:        "10.50",
		Quantity:          "2",
		DiscountPercent:   "0",
		DiscountValue:     "0",
		TotalPrice:        "21.00",
		InvoiceTotal:      "21.00",
		TotalQuantity:     "2",
		PaymentMethod:     "Cash",
		BillingType:       model.BillingTypeSale,
		Status:            model.RowStatusNew,
	}
}

func TestInsertRawRows_ChunkedCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	const total = 12345
	const chunkSize = 5000
	rows := make([]*model.RawRow, 0, total)
	for i := 0; i < total; i++ {
		rows = append(rows, fakeRawRow(int64(i+1), "batch_1"))
	}

	// 12345 rows at a 5000-row commit interval must land in exactly three
	// commits: 5000 + 5000 + 2345.
	chunkLens := []int{5000, 5000, 2345}
	for _, n := range chunkLens {
		mock.ExpectBegin()
		for page := 0; page < n; page += insertPageSize {
			pageLen := insertPageSize
			if n-page < pageLen {
				pageLen = n - page
			}
			mock.ExpectExec("INSERT INTO pos_raw_rows").
				WillReturnResult(sqlmock.NewResult(0, int64(pageLen)))
		}
		mock.ExpectCommit()
	}

	err = ds.InsertRawRows(context.Background(), rows, chunkSize)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRawRows_FailureRollsBackChunk(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := []*model.RawRow{fakeRawRow(1, "batch_1"), fakeRawRow(2, "batch_1")}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pos_raw_rows").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pos_raw_rows").
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err = ds.InsertRawRows(context.Background(), rows, 1)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaxRawRowID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(42))

	maxID, err := ds.MaxRawRowID(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(42), maxID)
}

func TestCommittedInvoiceKeys(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT DISTINCT invoice_key").
		WillReturnRows(sqlmock.NewRows([]string{"invoice_key"}).AddRow("inv-1").AddRow("inv-3"))

	committed, err := ds.CommittedInvoiceKeys(context.Background(), []string{"inv-1", "inv-2", "inv-3"})
	assert.NoError(t, err)
	assert.True(t, committed["inv-1"])
	assert.False(t, committed["inv-2"])
	assert.True(t, committed["inv-3"])
}

func TestCommittedInvoiceKeys_EmptyInput(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	committed, err := ds.CommittedInvoiceKeys(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, committed)
}

func TestPurgeRawRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("DELETE FROM pos_raw_rows").
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := ds.PurgeRawRows(context.Background(), "batch_1", []string{model.RowStatusLoaded, model.RowStatusDuplicate})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), count)
}

func TestGetRawRows_WholeBuffer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	cols := []string{"row_id", "batch_id", "invoice_pk", "market_id", "nielsen_code", "market_description",
		"date_timestamp", "day", "year", "receipt_no", "pos_no", "item_code", "barcode",
		"item_description", "sales_price", "quantity", "discount_percent", "discount_value",
		"total_price", "invoice_total", "total_quantity", "payment_method", "date_description",
		"billing_type", "status"}
	mock.ExpectQuery("SELECT row_id, batch_id").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "batch_1", "inv-1", "M001", "", "Market A", "2026-01-15 10:30:00", "2026-01-15",
				"2026", "1001", "2", "111", "", "Item", "10.50", "2", "0", "0", "21.00", "21.00", "2",
				"Cash", "", "Sale", "New"))

	rows, err := ds.GetRawRows(context.Background(), "")
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "inv-1", rows[0].InvoicePK)
}

func TestMarkCheckedRowsImported_EmptyInput(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	// No IDs means no round trip.
	err = ds.MarkCheckedRowsImported(context.Background(), nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCheckedRowStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE pos_checked_rows").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateCheckedRowStatus(context.Background(), 99, model.CheckStatusSuccessful)
	assert.Error(t, err)
}

func TestBuildMultiInsert(t *testing.T) {
	query, args := buildMultiInsert("t", []string{"a", "b"}, 2)
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4)", query)
	assert.Empty(t, args)
	assert.Equal(t, 4, cap(args))
}
