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

package posbridge

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/model"
)

var (
	numericShape = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
	yearShape    = regexp.MustCompile(`^[0-9]{4}$`)
)

// Timestamp formats accepted from the terminals, and the zero sentinels some
// terminals emit instead of a null.
var (
	timestampFormats = []string{"2006-01-02 15:04:05", "2006-01-02"}
	zeroTimestamps   = map[string]bool{
		"":                    true,
		"0000-00-00":          true,
		"0000-00-00 00:00:00": true,
	}
)

// RunQualityCheck validates the structural shape of every staged row of the
// batch (or the whole buffer when batchID is empty) and writes one checked
// row per raw row. A row staged as Duplicate passes through rejected as
// Duplicate no matter how well-formed it is. All raw rows are marked Loaded
// afterwards, so a re-run finds nothing to do. Returns the number of rows
// processed.
func (p *Posbridge) RunQualityCheck(ctx context.Context, batchID string) (int, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	rawRows, err := p.datasource.GetRawRows(ctx, batchID)
	if err != nil {
		return 0, err
	}

	pending := make([]*model.RawRow, 0, len(rawRows))
	for _, row := range rawRows {
		if row.Status == model.RowStatusLoaded {
			continue
		}
		pending = append(pending, row)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	maxCheckID, err := p.datasource.MaxCheckedRowID(ctx)
	if err != nil {
		return 0, err
	}

	checked := make([]*model.CheckedRow, 0, len(pending))
	for i, row := range pending {
		c := checkedRowFromRaw(row)
		c.CheckID = maxCheckID + int64(i) + 1
		if row.Status == model.RowStatusDuplicate {
			c.Status = model.CheckStatusDuplicate
			c.RejectedReason = "Duplicate invoice"
		} else if reasons := validateRowShape(row); len(reasons) > 0 {
			c.Status = model.CheckStatusRejected
			c.RejectedReason = strings.Join(reasons, ", ")
		} else {
			c.Status = model.CheckStatusQualityChecked
		}
		checked = append(checked, c)
	}

	if err := p.datasource.InsertCheckedRows(ctx, checked, cfg.Staging.InsertChunkSize); err != nil {
		return 0, err
	}
	if err := p.datasource.MarkRawRowsLoaded(ctx, batchID); err != nil {
		return 0, err
	}
	return len(checked), nil
}

// validateRowShape returns one reason per failed structural check, in a
// fixed order. Every failure is reported, not just the first.
func validateRowShape(row *model.RawRow) []string {
	var reasons []string
	if !validTimestamp(row.DateTimestamp) {
		reasons = append(reasons, "Invalid Date Timestamp")
	}
	numericChecks := []struct {
		value  string
		reason string
	}{
		{row.SalesPrice, "Invalid Sales Price"},
		{row.Quantity, "Invalid Quantity"},
		{row.DiscountPercent, "Invalid Discount Percent"},
		{row.DiscountValue, "Invalid Discount Value"},
		{row.InvoiceTotal, "Invalid Invoice Total"},
		{row.TotalPrice, "Invalid Total Price"},
		{row.TotalQuantity, "Invalid Total Quantity"},
	}
	for _, check := range numericChecks {
		if !numericShape.MatchString(strings.TrimSpace(check.value)) {
			reasons = append(reasons, check.reason)
		}
	}
	if !yearShape.MatchString(strings.TrimSpace(row.Year)) {
		reasons = append(reasons, "Invalid Year")
	}
	return reasons
}

func validTimestamp(value string) bool {
	value = strings.TrimSpace(value)
	if zeroTimestamps[value] {
		return false
	}
	for _, format := range timestampFormats {
		if _, err := time.Parse(format, value); err == nil {
			return true
		}
	}
	return false
}

func checkedRowFromRaw(row *model.RawRow) *model.CheckedRow {
	return &model.CheckedRow{
		RawRowID:          row.RowID,
		BatchID:           row.BatchID,
		InvoicePK:         row.InvoicePK,
		MarketID:          row.MarketID,
		NielsenCode:       row.NielsenCode,
		MarketDescription: row.MarketDescription,
		DateTimestamp:     row.DateTimestamp,
		Day:               row.Day,
		Year:              row.Year,
		ReceiptNo:         row.ReceiptNo,
		PosNo:             row.PosNo,
		ItemCode:          row.ItemCode,
		Barcode:           row.Barcode,
		ItemDescription:   row.ItemDescription,
		SalesPrice:        row.SalesPrice,
		Quantity:          row.Quantity,
		DiscountPercent:   row.DiscountPercent,
		DiscountValue:     row.DiscountValue,
		TotalPrice:        row.TotalPrice,
		InvoiceTotal:      row.InvoiceTotal,
		TotalQuantity:     row.TotalQuantity,
		PaymentMethod:     row.PaymentMethod,
		DateDescription:   row.DateDescription,
		BillingType:       row.BillingType,
	}
}
