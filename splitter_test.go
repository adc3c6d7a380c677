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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInvoiceFile(t *testing.T, dir, name string, records []map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(records)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func invoiceRecord(key string, n int) map[string]interface{} {
	return map[string]interface{}{
		"invoice_pk": key,
		"item_code":  fmt.Sprintf("SKU-%d", n),
		"quantity":   json.Number("1"),
	}
}

func readBatchFile(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records), "batch file must be valid JSON: %s", path)
	return records
}

func TestSplitInvoiceFile_KeepsInvoicesCoherent(t *testing.T) {
	dir := t.TempDir()

	// 5 invoices, 2 per batch, with the lines of each invoice interleaved
	// through the file.
	records := []map[string]interface{}{}
	for line := 0; line < 3; line++ {
		for inv := 0; inv < 5; inv++ {
			records = append(records, invoiceRecord(fmt.Sprintf("INV-%d", inv), line))
		}
	}
	path := writeInvoiceFile(t, dir, "terminal.json", records)

	batches, err := splitInvoiceFile(path, 2)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	keyToBatch := map[string]int{}
	total := 0
	for _, batch := range batches {
		assert.Equal(t, fmt.Sprintf("terminal_%04d.json", batch.Number), batch.Name)
		for _, record := range readBatchFile(t, batch.Path) {
			key := record["invoice_pk"].(string)
			if prev, seen := keyToBatch[key]; seen {
				assert.Equal(t, prev, batch.Number, "invoice %s split across batches", key)
			}
			keyToBatch[key] = batch.Number
			total++
		}
		assert.Equal(t, batch.Records, len(readBatchFile(t, batch.Path)))
	}
	assert.Equal(t, len(records), total)
	assert.Len(t, keyToBatch, 5)
}

func TestSplitInvoiceFile_RoutesNumericKeysExactly(t *testing.T) {
	dir := t.TempDir()

	// Numeric invoice_pk values must route on their source text. A key
	// large enough to pick up an exponent under float64 formatting and a
	// trailing-zero decimal both catch any lossy re-rendering between the
	// discovery and write passes.
	records := []map[string]interface{}{
		{"invoice_pk": json.Number("10000000"), "item_code": "SKU-1"},
		{"invoice_pk": json.Number("10.50"), "item_code": "SKU-2"},
		{"invoice_pk": json.Number("10000000"), "item_code": "SKU-3"},
		{"invoice_pk": json.Number("10.50"), "item_code": "SKU-4"},
	}
	path := writeInvoiceFile(t, dir, "numeric.json", records)

	batches, err := splitInvoiceFile(path, 100)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	routed := readBatchFile(t, batches[0].Path)
	require.Len(t, routed, 4, "every record must land in its batch")
	assert.Equal(t, 4, batches[0].Records)
	assert.Equal(t, float64(10000000), routed[0]["invoice_pk"])
	assert.Equal(t, 10.50, routed[1]["invoice_pk"])
}

func TestSplitInvoiceFile_AssignsKeysInFirstSeenOrder(t *testing.T) {
	dir := t.TempDir()
	records := []map[string]interface{}{
		invoiceRecord("INV-A", 0),
		invoiceRecord("INV-B", 0),
		invoiceRecord("INV-C", 0),
	}
	path := writeInvoiceFile(t, dir, "ordered.json", records)

	batches, err := splitInvoiceFile(path, 2)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	first := readBatchFile(t, batches[0].Path)
	second := readBatchFile(t, batches[1].Path)
	assert.Equal(t, "INV-A", first[0]["invoice_pk"])
	assert.Equal(t, "INV-B", first[1]["invoice_pk"])
	assert.Equal(t, "INV-C", second[0]["invoice_pk"])
}

func TestSplitInvoiceFile_NoKeysYieldsNoBatches(t *testing.T) {
	dir := t.TempDir()
	path := writeInvoiceFile(t, dir, "empty.json", []map[string]interface{}{})

	batches, err := splitInvoiceFile(path, 10)
	assert.NoError(t, err)
	assert.Empty(t, batches)
}

func TestSplitInvoiceFile_SkipsRecordsWithoutAnyKey(t *testing.T) {
	dir := t.TempDir()
	records := []map[string]interface{}{
		{"item_code": "SKU-1"},
		invoiceRecord("INV-A", 0),
	}
	path := writeInvoiceFile(t, dir, "partial.json", records)

	batches, err := splitInvoiceFile(path, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Records)
}

func TestSplitInvoiceFile_ClampsInvoicesPerFile(t *testing.T) {
	dir := t.TempDir()
	records := []map[string]interface{}{
		invoiceRecord("INV-A", 0),
		invoiceRecord("INV-B", 0),
	}
	path := writeInvoiceFile(t, dir, "clamped.json", records)

	// A non-positive limit falls back rather than failing the split.
	batches, err := splitInvoiceFile(path, 0)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestValidateInvoiceFile(t *testing.T) {
	dir := t.TempDir()

	good := writeInvoiceFile(t, dir, "good.json", []map[string]interface{}{invoiceRecord("INV-A", 0)})
	assert.NoError(t, validateInvoiceFile(good))

	empty := writeInvoiceFile(t, dir, "empty.json", []map[string]interface{}{})
	assert.NoError(t, validateInvoiceFile(empty))

	object := filepath.Join(dir, "object.json")
	require.NoError(t, os.WriteFile(object, []byte(`{"not": "a list"}`), 0o644))
	assert.Error(t, validateInvoiceFile(object))

	keyless := writeInvoiceFile(t, dir, "keyless.json", []map[string]interface{}{{"item_code": "SKU-1"}})
	assert.Error(t, validateInvoiceFile(keyless))

	truncated := filepath.Join(dir, "truncated.json")
	require.NoError(t, os.WriteFile(truncated, []byte(`[{"invoice_pk": "INV`), 0o644))
	assert.Error(t, validateInvoiceFile(truncated))
}

func TestInvoiceKeyFromRecord(t *testing.T) {
	assert.Equal(t, "PK-9", invoiceKeyFromRecord(map[string]interface{}{
		"invoice_pk": "PK-9",
		"market_id":  "M01",
		"receipt_no": "1",
	}))

	assert.Equal(t, "M01|3|2026|555", invoiceKeyFromRecord(map[string]interface{}{
		"market_id":  "M01",
		"pos_no":     json.Number("3"),
		"year":       json.Number("2026"),
		"receipt_no": json.Number("555"),
	}))

	// Composite keys need at least a market and a receipt number.
	assert.Empty(t, invoiceKeyFromRecord(map[string]interface{}{
		"pos_no": json.Number("3"),
	}))
}

func TestFieldString(t *testing.T) {
	record := map[string]interface{}{
		"padded":  "  spaced  ",
		"number":  json.Number("10.50"),
		"flag":    true,
		"missing": nil,
	}
	assert.Equal(t, "spaced", fieldString(record, "padded"))
	assert.Equal(t, "10.50", fieldString(record, "number"))
	assert.Equal(t, "true", fieldString(record, "flag"))
	assert.Equal(t, "", fieldString(record, "missing"))
	assert.Equal(t, "", fieldString(record, "absent"))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "terminal_export", baseName("terminal_export.json"))
	assert.Equal(t, "no_extension", baseName("no_extension"))
}
