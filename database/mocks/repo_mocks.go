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
package mocks

import (
	"context"

	"github.com/kcsc/posbridge/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Staging methods

func (m *MockDataSource) MaxRawRowID(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) PurgeRawRows(ctx context.Context, batchID string, statuses []string) (int64, error) {
	args := m.Called(ctx, batchID, statuses)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) CommittedInvoiceKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	args := m.Called(ctx, keys)
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockDataSource) InsertRawRows(ctx context.Context, rows []*model.RawRow, chunkSize int) error {
	args := m.Called(ctx, rows, chunkSize)
	return args.Error(0)
}

func (m *MockDataSource) GetRawRows(ctx context.Context, batchID string) ([]*model.RawRow, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).([]*model.RawRow), args.Error(1)
}

func (m *MockDataSource) MarkRawRowsLoaded(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

func (m *MockDataSource) MaxCheckedRowID(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) InsertCheckedRows(ctx context.Context, rows []*model.CheckedRow, chunkSize int) error {
	args := m.Called(ctx, rows, chunkSize)
	return args.Error(0)
}

func (m *MockDataSource) GetCheckedRowsForAggregation(ctx context.Context, batchID string) ([]*model.CheckedRow, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).([]*model.CheckedRow), args.Error(1)
}

func (m *MockDataSource) MarkCheckedRowsImported(ctx context.Context, checkIDs []int64) error {
	args := m.Called(ctx, checkIDs)
	return args.Error(0)
}

func (m *MockDataSource) UpdateCheckedRowStatus(ctx context.Context, checkID int64, status string) error {
	args := m.Called(ctx, checkID, status)
	return args.Error(0)
}

func (m *MockDataSource) PurgeBatchStaging(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

// Document methods

func (m *MockDataSource) MaxImportDocumentSeq(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) InsertImportDocuments(ctx context.Context, docs []*model.ImportDocument, chunkSize int) error {
	args := m.Called(ctx, docs, chunkSize)
	return args.Error(0)
}

func (m *MockDataSource) GetSubmittableDocuments(ctx context.Context) ([]*model.ImportDocument, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.ImportDocument), args.Error(1)
}

func (m *MockDataSource) GetImportDocument(ctx context.Context, id string) (*model.ImportDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ImportDocument), args.Error(1)
}

func (m *MockDataSource) GetDocumentsByInvoiceKey(ctx context.Context, key string) ([]*model.ImportDocument, error) {
	args := m.Called(ctx, key)
	return args.Get(0).([]*model.ImportDocument), args.Error(1)
}

func (m *MockDataSource) UpdateImportDocumentStatus(ctx context.Context, id, status, reason string) error {
	args := m.Called(ctx, id, status, reason)
	return args.Error(0)
}

func (m *MockDataSource) SetImportDocumentDocstatus(ctx context.Context, id string, docstatus int) error {
	args := m.Called(ctx, id, docstatus)
	return args.Error(0)
}

// Batch methods

func (m *MockDataSource) RecordActiveFile(ctx context.Context, file *model.ActiveFile) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockDataSource) GetActiveFile(ctx context.Context, id string) (*model.ActiveFile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ActiveFile), args.Error(1)
}

func (m *MockDataSource) ActiveFileInProgress(ctx context.Context, fileName, excludeID string) (bool, error) {
	args := m.Called(ctx, fileName, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) UpdateActiveFileStatus(ctx context.Context, id, status, description string) error {
	args := m.Called(ctx, id, status, description)
	return args.Error(0)
}

func (m *MockDataSource) UpdateActiveFilePath(ctx context.Context, id, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

func (m *MockDataSource) RecordSplitFiles(ctx context.Context, splits []*model.SplitFile) error {
	args := m.Called(ctx, splits)
	return args.Error(0)
}

func (m *MockDataSource) GetSplitFile(ctx context.Context, id string) (*model.SplitFile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SplitFile), args.Error(1)
}

func (m *MockDataSource) GetPendingSplitFiles(ctx context.Context, parentID string) ([]*model.SplitFile, error) {
	args := m.Called(ctx, parentID)
	return args.Get(0).([]*model.SplitFile), args.Error(1)
}

func (m *MockDataSource) UpdateSplitFileStatus(ctx context.Context, id, status, description string) error {
	args := m.Called(ctx, id, status, description)
	return args.Error(0)
}

// Registry methods

func (m *MockDataSource) ItemCodesExist(ctx context.Context, codes []string) (map[string]bool, error) {
	args := m.Called(ctx, codes)
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockDataSource) ListPOSProfiles(ctx context.Context) ([]*model.POSProfile, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.POSProfile), args.Error(1)
}

func (m *MockDataSource) GetPOSProfile(ctx context.Context, name string) (*model.POSProfile, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.POSProfile), args.Error(1)
}

func (m *MockDataSource) PaymentMethodsExist(ctx context.Context, names []string) (map[string]bool, error) {
	args := m.Called(ctx, names)
	return args.Get(0).(map[string]bool), args.Error(1)
}

// Accounting methods

func (m *MockDataSource) InsertSalesInvoice(ctx context.Context, invoice *model.SalesInvoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockDataSource) SubmitSalesInvoice(ctx context.Context, invoiceID string) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

func (m *MockDataSource) FindOriginalInvoice(ctx context.Context, marketID, posNo, receiptNo string) (*model.SalesInvoice, error) {
	args := m.Called(ctx, marketID, posNo, receiptNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SalesInvoice), args.Error(1)
}
