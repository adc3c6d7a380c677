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

	"github.com/sirupsen/logrus"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/model"
)

// IntakeResult reports what one intake pass staged.
type IntakeResult struct {
	NewRows       int
	DuplicateRows int
}

// RunIntake stages raw rows under the given batch id. Rows whose invoice key
// already belongs to a committed document are staged as Duplicate; the rest
// as New. Inserts land in independently committed chunks, and any rows left
// in a terminal staging state by a previous run of the same batch are purged
// first so a re-run never double-stages.
func (p *Posbridge) RunIntake(ctx context.Context, rows []*model.RawRow, batchID string) (*IntakeResult, error) {
	result := &IntakeResult{}
	if len(rows) == 0 {
		return result, nil
	}
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	purged, err := p.datasource.PurgeRawRows(ctx, batchID, []string{model.RowStatusLoaded, model.RowStatusDuplicate})
	if err != nil {
		return nil, err
	}
	if purged > 0 {
		logrus.Infof("purged %d previously staged rows for batch %s", purged, batchID)
	}

	keySet := map[string]bool{}
	keys := []string{}
	for _, row := range rows {
		key := row.InvoiceKey()
		if key == "" || keySet[key] {
			continue
		}
		keySet[key] = true
		keys = append(keys, key)
	}
	committed, err := p.datasource.CommittedInvoiceKeys(ctx, keys)
	if err != nil {
		return nil, err
	}

	maxID, err := p.datasource.MaxRawRowID(ctx)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		row.RowID = maxID + int64(i) + 1
		row.BatchID = batchID
		if committed[row.InvoiceKey()] {
			row.Status = model.RowStatusDuplicate
			result.DuplicateRows++
		} else {
			row.Status = model.RowStatusNew
			result.NewRows++
		}
	}

	if err := p.datasource.InsertRawRows(ctx, rows, cfg.Staging.InsertChunkSize); err != nil {
		return nil, err
	}
	logrus.Infof("intake for batch %s: %d new, %d duplicate", batchID, result.NewRows, result.DuplicateRows)
	return result, nil
}
