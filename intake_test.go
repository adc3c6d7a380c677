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

	"github.com/kcsc/posbridge/model"
)

func TestRunIntake_SplitsNewFromCommittedDuplicates(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()

	rows := []*model.RawRow{
		{InvoicePK: "INV-1"},
		{InvoicePK: "INV-1"},
		{InvoicePK: "INV-2"},
	}

	ds.On("PurgeRawRows", ctx, "batch-1", []string{model.RowStatusLoaded, model.RowStatusDuplicate}).
		Return(int64(0), nil)
	ds.On("CommittedInvoiceKeys", ctx, []string{"INV-1", "INV-2"}).
		Return(map[string]bool{"INV-1": true}, nil)
	ds.On("MaxRawRowID", ctx).Return(int64(100), nil)
	ds.On("InsertRawRows", ctx, rows, 5000).Return(nil)

	result, err := bridge.RunIntake(ctx, rows, "batch-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, result.NewRows)
	assert.Equal(t, 2, result.DuplicateRows)

	// Serial ids continue from the current maximum, in input order.
	assert.Equal(t, int64(101), rows[0].RowID)
	assert.Equal(t, int64(103), rows[2].RowID)
	assert.Equal(t, model.RowStatusDuplicate, rows[0].Status)
	assert.Equal(t, model.RowStatusDuplicate, rows[1].Status)
	assert.Equal(t, model.RowStatusNew, rows[2].Status)
	assert.Equal(t, "batch-1", rows[0].BatchID)
	ds.AssertExpectations(t)
}

func TestRunIntake_EmptyInputSkipsAllWrites(t *testing.T) {
	bridge, ds := newTestBridge()

	result, err := bridge.RunIntake(context.Background(), nil, "batch-1")
	assert.NoError(t, err)
	assert.Equal(t, 0, result.NewRows+result.DuplicateRows)
	ds.AssertNotCalled(t, "PurgeRawRows", mock.Anything, mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "InsertRawRows", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunIntake_ReRunPurgesPriorStaging(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()

	rows := []*model.RawRow{{InvoicePK: "INV-1"}}

	ds.On("PurgeRawRows", ctx, "batch-1", []string{model.RowStatusLoaded, model.RowStatusDuplicate}).
		Return(int64(12), nil)
	ds.On("CommittedInvoiceKeys", ctx, []string{"INV-1"}).Return(map[string]bool{}, nil)
	ds.On("MaxRawRowID", ctx).Return(int64(0), nil)
	ds.On("InsertRawRows", ctx, rows, 5000).Return(nil)

	_, err := bridge.RunIntake(ctx, rows, "batch-1")
	assert.NoError(t, err)
	ds.AssertExpectations(t)
}
