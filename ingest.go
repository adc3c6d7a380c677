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

	"github.com/kcsc/posbridge/internal/apierror"
	"github.com/kcsc/posbridge/internal/jsonrepair"
	"github.com/kcsc/posbridge/model"
)

// IngestPayload stages a pushed terminal payload directly into the raw row
// buffer, bypassing the file pipeline. Terminals emit quasi-JSON with
// single-quoted strings and Python literals, so the payload goes through
// repair before decoding. Accepted shapes are a bare list of records or an
// object wrapping one under "records". The staged rows are picked up by the
// next batch run; this call does not drive the pipeline itself.
func (p *Posbridge) IngestPayload(ctx context.Context, payload []byte) (*IntakeResult, error) {
	parsed, ok := jsonrepair.Parse(payload)
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "payload is not parseable as JSON", nil)
	}

	records, err := extractRecords(parsed)
	if err != nil {
		return nil, err
	}
	rows := make([]*model.RawRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, rawRowFromRecord(record))
	}

	batchID := model.GenerateUUIDWithSuffix("ingest")
	return p.RunIntake(ctx, rows, batchID)
}

func extractRecords(parsed interface{}) ([]map[string]interface{}, error) {
	if wrapper, ok := parsed.(map[string]interface{}); ok {
		inner, found := wrapper["records"]
		if !found {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "payload object has no records field", nil)
		}
		parsed = inner
	}
	list, ok := parsed.([]interface{})
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "payload is not a list of records", nil)
	}

	records := make([]map[string]interface{}, 0, len(list))
	for _, element := range list {
		record, ok := element.(map[string]interface{})
		if !ok {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "payload contains a non-object record", nil)
		}
		records = append(records, record)
	}
	return records, nil
}
