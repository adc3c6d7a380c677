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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/kcsc/posbridge/database/mocks"
)

func expectIntake(ds *mocks.MockDataSource, ctx context.Context) {
	ds.On("PurgeRawRows", ctx, mock.Anything, mock.Anything).Return(int64(0), nil)
	ds.On("CommittedInvoiceKeys", ctx, mock.Anything).Return(map[string]bool{}, nil)
	ds.On("MaxRawRowID", ctx).Return(int64(0), nil)
	ds.On("InsertRawRows", ctx, mock.Anything, 5000).Return(nil)
}

func TestIngestPayload_BareList(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()
	expectIntake(ds, ctx)

	payload := []byte(`[{"invoice_pk": "INV-1", "quantity": 2}]`)
	result, err := bridge.IngestPayload(ctx, payload)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.NewRows)
	ds.AssertExpectations(t)
}

func TestIngestPayload_RecordsWrapper(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()
	expectIntake(ds, ctx)

	payload := []byte(`{"records": [{"invoice_pk": "INV-1"}, {"invoice_pk": "INV-2"}]}`)
	result, err := bridge.IngestPayload(ctx, payload)
	assert.NoError(t, err)
	assert.Equal(t, 2, result.NewRows)
}

func TestIngestPayload_RepairsQuasiJSON(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()
	expectIntake(ds, ctx)

	// Single quotes and Python literals, as the terminals actually send.
	payload := []byte(`[{'invoice_pk': 'INV-1', 'quantity': 2, 'void': None, 'paid': True}]`)
	result, err := bridge.IngestPayload(ctx, payload)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.NewRows)
}

func TestIngestPayload_RejectsUnparseablePayload(t *testing.T) {
	bridge, ds := newTestBridge()

	_, err := bridge.IngestPayload(context.Background(), []byte("not json at all"))
	assert.Error(t, err)
	ds.AssertNotCalled(t, "InsertRawRows", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestPayload_RejectsNonListShapes(t *testing.T) {
	bridge, _ := newTestBridge()
	ctx := context.Background()

	_, err := bridge.IngestPayload(ctx, []byte(`{"no_records_here": 1}`))
	assert.Error(t, err)

	_, err = bridge.IngestPayload(ctx, []byte(`[1, 2, 3]`))
	assert.Error(t, err)
}

func TestRawRowFromRecord_CoercesFieldTypes(t *testing.T) {
	row := rawRowFromRecord(map[string]interface{}{
		"invoice_pk":  "INV-1",
		"market_id":   "M01",
		"quantity":    2.0,
		"sales_price": "10.50",
	})
	assert.Equal(t, "INV-1", row.InvoicePK)
	assert.Equal(t, "M01", row.MarketID)
	assert.Equal(t, "10.50", row.SalesPrice)
	assert.Equal(t, "2", row.Quantity)
	assert.Equal(t, "", row.Status)
}
