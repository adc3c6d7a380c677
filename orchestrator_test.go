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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/model"
)

func pendingSplit(t *testing.T, dir string, records []map[string]interface{}) *model.SplitFile {
	t.Helper()
	path := writeInvoiceFile(t, dir, "terminal_0001.json", records)
	return &model.SplitFile{
		SplitID:      "split-1",
		ParentFileID: "file-1",
		FileName:     "terminal_0001.json",
		FilePath:     path,
		BatchNumber:  1,
		Status:       model.BatchStatusPending,
	}
}

func TestProcessSplitFile_SkipsNonPendingSplits(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()

	ds.On("GetSplitFile", ctx, "split-1").Return(&model.SplitFile{
		SplitID: "split-1",
		Status:  model.BatchStatusCompleted,
	}, nil)

	assert.NoError(t, bridge.ProcessSplitFile(ctx, "split-1"))
	ds.AssertNotCalled(t, "UpdateSplitFileStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessSplitFile_EmptyBatchCompletesAndArchives(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()
	dir := t.TempDir()
	split := pendingSplit(t, dir, []map[string]interface{}{})

	archiveRoot := filepath.Join(dir, "archive")
	withArchivePath(t, archiveRoot)

	ds.On("GetSplitFile", ctx, "split-1").Return(split, nil)
	ds.On("UpdateSplitFileStatus", ctx, "split-1", model.BatchStatusProcessing, "Starting batch pipeline").Return(nil)
	ds.On("UpdateSplitFileStatus", ctx, "split-1", model.BatchStatusCompleted, "No rows to process").Return(nil)

	require.NoError(t, bridge.ProcessSplitFile(ctx, "split-1"))

	_, err := os.Stat(filepath.Join(archiveRoot, "terminal", "complete", "terminal_0001.json"))
	assert.NoError(t, err, "batch file should be archived under complete/")
	ds.AssertExpectations(t)
}

func TestProcessSplitFile_UnreadableFileMarksFailedAndArchives(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "terminal_0002.json")
	require.NoError(t, os.WriteFile(path, []byte("{ broken"), 0o644))
	split := &model.SplitFile{
		SplitID:  "split-2",
		FileName: "terminal_0002.json",
		FilePath: path,
		Status:   model.BatchStatusPending,
	}

	archiveRoot := filepath.Join(dir, "archive")
	withArchivePath(t, archiveRoot)

	ds.On("GetSplitFile", ctx, "split-2").Return(split, nil)
	ds.On("UpdateSplitFileStatus", ctx, "split-2", model.BatchStatusProcessing, "Starting batch pipeline").Return(nil)
	ds.On("UpdateSplitFileStatus", ctx, "split-2", model.BatchStatusFailed, mock.Anything).Return(nil)

	assert.Error(t, bridge.ProcessSplitFile(ctx, "split-2"))

	_, err := os.Stat(filepath.Join(archiveRoot, "terminal", "failed", "terminal_0002.json"))
	assert.NoError(t, err, "batch file should be archived under failed/")
	ds.AssertExpectations(t)
}

// withArchivePath points the mocked configuration's archive root at dir.
func withArchivePath(t *testing.T, dir string) {
	t.Helper()
	cnf, err := config.Fetch()
	require.NoError(t, err)
	cnf.Pipeline.ArchivePath = dir
}

func TestReadBatchRows(t *testing.T) {
	dir := t.TempDir()
	path := writeInvoiceFile(t, dir, "rows.json", []map[string]interface{}{
		{"invoice_pk": "INV-1", "quantity": 2, "sales_price": "10.50"},
		{"invoice_pk": "INV-2", "quantity": 1},
	})

	rows, err := readBatchRows(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "INV-1", rows[0].InvoicePK)
	assert.Equal(t, "2", rows[0].Quantity)
	assert.Equal(t, "10.50", rows[0].SalesPrice)
	assert.Equal(t, "INV-2", rows[1].InvoicePK)
}

func TestReadBatchRows_RejectsNonArrayFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "object.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "a list"}`), 0o644))

	_, err := readBatchRows(path)
	assert.Error(t, err)
}

func TestParentBase(t *testing.T) {
	assert.Equal(t, "terminal", parentBase("terminal_0001.json"))
	assert.Equal(t, "terminal_export", parentBase("terminal_export_0031.json"))
	assert.Equal(t, "odd", parentBase("odd.json"))
}
