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

package database

import (
	"context"

	"github.com/kcsc/posbridge/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	staging    // Interface for raw/checked staging row operations
	document   // Interface for import document operations
	batch      // Interface for active/split file tracking operations
	registry   // Interface for master data registry lookups
	accounting // Interface for produced accounting document operations
}

// staging defines methods for handling raw and checked staging rows.
type staging interface {
	MaxRawRowID(ctx context.Context) (int64, error)                                                  // Retrieves the highest assigned raw row identifier
	PurgeRawRows(ctx context.Context, batchID string, statuses []string) (int64, error)              // Deletes raw rows of a batch in the given statuses
	CommittedInvoiceKeys(ctx context.Context, keys []string) (map[string]bool, error)                // Reports which invoice keys already reached a committed document
	InsertRawRows(ctx context.Context, rows []*model.RawRow, chunkSize int) error                    // Bulk-inserts raw rows in independently committed chunks
	GetRawRows(ctx context.Context, batchID string) ([]*model.RawRow, error)                         // Retrieves raw rows of a batch, or the whole buffer when batchID is empty
	MarkRawRowsLoaded(ctx context.Context, batchID string) error                                     // Flips New raw rows of a batch to Loaded
	MaxCheckedRowID(ctx context.Context) (int64, error)                                              // Retrieves the highest assigned checked row identifier
	InsertCheckedRows(ctx context.Context, rows []*model.CheckedRow, chunkSize int) error            // Bulk-inserts checked rows in independently committed chunks
	GetCheckedRowsForAggregation(ctx context.Context, batchID string) ([]*model.CheckedRow, error)   // Retrieves not-yet-imported checked rows of a batch
	MarkCheckedRowsImported(ctx context.Context, checkIDs []int64) error                             // Flags checked rows as consumed by a committed document
	UpdateCheckedRowStatus(ctx context.Context, checkID int64, status string) error                  // Updates the status of one checked row
	PurgeBatchStaging(ctx context.Context, batchID string) error                                     // Removes all staging rows of a batch
}

// document defines methods for handling import documents.
type document interface {
	MaxImportDocumentSeq(ctx context.Context) (int64, error)                                      // Retrieves the highest assigned document sequence number
	InsertImportDocuments(ctx context.Context, docs []*model.ImportDocument, chunkSize int) error // Bulk-inserts documents with their items in independently committed chunks
	GetSubmittableDocuments(ctx context.Context) ([]*model.ImportDocument, error)                 // Retrieves draft, master-data-checked documents in posting order
	GetImportDocument(ctx context.Context, id string) (*model.ImportDocument, error)              // Retrieves one document with its items
	GetDocumentsByInvoiceKey(ctx context.Context, key string) ([]*model.ImportDocument, error)    // Retrieves every document carrying an invoice key, across batches
	UpdateImportDocumentStatus(ctx context.Context, id, status, reason string) error              // Persists a status transition as its own commit
	SetImportDocumentDocstatus(ctx context.Context, id string, docstatus int) error               // Updates the framework-level document state
}

// batch defines methods for tracking inbox files and their splits.
type batch interface {
	RecordActiveFile(ctx context.Context, file *model.ActiveFile) error                         // Registers an inbox file for processing
	GetActiveFile(ctx context.Context, id string) (*model.ActiveFile, error)                    // Retrieves an active file by ID
	ActiveFileInProgress(ctx context.Context, fileName, excludeID string) (bool, error)         // Reports whether another non-terminal record exists for the file name
	UpdateActiveFileStatus(ctx context.Context, id, status, description string) error           // Updates file status; stamps start/end times on transitions
	UpdateActiveFilePath(ctx context.Context, id, path string) error                            // Records a file move
	RecordSplitFiles(ctx context.Context, splits []*model.SplitFile) error                      // Registers the batches produced by one split
	GetSplitFile(ctx context.Context, id string) (*model.SplitFile, error)                      // Retrieves a split file by ID
	GetPendingSplitFiles(ctx context.Context, parentID string) ([]*model.SplitFile, error)      // Retrieves unprocessed splits of a parent file in batch order
	UpdateSplitFileStatus(ctx context.Context, id, status, description string) error            // Updates split status; stamps start/end times on transitions
}

// registry defines methods for master data lookups used during aggregation.
type registry interface {
	ItemCodesExist(ctx context.Context, codes []string) (map[string]bool, error) // Reports which item codes exist in the item registry
	ListPOSProfiles(ctx context.Context) ([]*model.POSProfile, error)            // Retrieves all POS profiles
	GetPOSProfile(ctx context.Context, name string) (*model.POSProfile, error)   // Retrieves one POS profile
	PaymentMethodsExist(ctx context.Context, names []string) (map[string]bool, error) // Reports which payment methods exist
}

// accounting defines methods for producing and submitting accounting documents.
type accounting interface {
	InsertSalesInvoice(ctx context.Context, invoice *model.SalesInvoice) error                             // Persists a draft invoice with its items and payments in one transaction
	SubmitSalesInvoice(ctx context.Context, invoiceID string) error                                        // Finalizes a draft invoice
	FindOriginalInvoice(ctx context.Context, marketID, posNo, receiptNo string) (*model.SalesInvoice, error) // Locates the submitted forward sale a return corrects
}
