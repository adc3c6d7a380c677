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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/internal/files"
	"github.com/kcsc/posbridge/internal/notification"
	"github.com/kcsc/posbridge/model"
)

// ProcessSplitFile runs the batch pipeline for one split file: intake →
// quality → aggregation → submission → cleanup, all staging access scoped to
// the split id so concurrently processing batches never touch each other's
// rows. Every stage's outcome is persisted as a status description. A failed
// stage marks the batch Failed and archives the file under failed/; success
// archives under complete/. Writes already committed by earlier stages stay
// committed; the imported/Loaded/dedup markers make a re-run safe.
func (p *Posbridge) ProcessSplitFile(ctx context.Context, splitID string) error {
	split, err := p.datasource.GetSplitFile(ctx, splitID)
	if err != nil {
		return err
	}
	if split.Status != model.BatchStatusPending {
		logrus.Infof("split file %s is %s, skipping", splitID, split.Status)
		return nil
	}
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if err := p.runBatchPipeline(ctx, split); err != nil {
		if statusErr := p.datasource.UpdateSplitFileStatus(ctx, splitID, model.BatchStatusFailed, err.Error()); statusErr != nil {
			logrus.WithError(statusErr).Errorf("failed to mark split file %s failed", splitID)
		}
		notification.NotifyError(err)
		p.archiveSplitFile(cfg, split, "failed")
		return err
	}
	p.archiveSplitFile(cfg, split, "complete")
	return nil
}

func (p *Posbridge) runBatchPipeline(ctx context.Context, split *model.SplitFile) error {
	if err := p.datasource.UpdateSplitFileStatus(ctx, split.SplitID, model.BatchStatusProcessing, "Starting batch pipeline"); err != nil {
		return err
	}

	rows, err := readBatchRows(split.FilePath)
	if err != nil {
		return err
	}
	intake, err := p.RunIntake(ctx, rows, split.SplitID)
	if err != nil {
		return errors.Wrap(err, "intake stage")
	}
	if intake.NewRows+intake.DuplicateRows == 0 {
		return p.datasource.UpdateSplitFileStatus(ctx, split.SplitID, model.BatchStatusCompleted, "No rows to process")
	}
	if err := p.datasource.UpdateSplitFileStatus(ctx, split.SplitID, model.BatchStatusProcessing,
		fmt.Sprintf("Intake complete: %d new, %d duplicate", intake.NewRows, intake.DuplicateRows)); err != nil {
		return err
	}

	checked, err := p.RunQualityCheck(ctx, split.SplitID)
	if err != nil {
		return errors.Wrap(err, "quality stage")
	}
	if err := p.datasource.UpdateSplitFileStatus(ctx, split.SplitID, model.BatchStatusProcessing,
		fmt.Sprintf("Quality check complete: %d rows", checked)); err != nil {
		return err
	}

	created, err := p.RunAggregation(ctx, split.SplitID)
	if err != nil {
		return errors.Wrap(err, "aggregation stage")
	}
	if err := p.datasource.UpdateSplitFileStatus(ctx, split.SplitID, model.BatchStatusProcessing,
		fmt.Sprintf("Aggregation complete: %d documents", created)); err != nil {
		return err
	}

	submission, err := p.SubmitDocuments(ctx)
	if err != nil {
		return errors.Wrap(err, "submission stage")
	}
	if err := p.datasource.UpdateSplitFileStatus(ctx, split.SplitID, model.BatchStatusProcessing,
		fmt.Sprintf("Submission complete: %d processed, %d failed", len(submission.Processed), len(submission.Failed))); err != nil {
		return err
	}

	// Raw rows are no longer needed once their batch is reflected in import
	// documents; checked rows stay for traceability.
	if _, err := p.datasource.PurgeRawRows(ctx, split.SplitID, []string{model.RowStatusLoaded, model.RowStatusDuplicate}); err != nil {
		return errors.Wrap(err, "cleanup stage")
	}

	return p.datasource.UpdateSplitFileStatus(ctx, split.SplitID, model.BatchStatusCompleted,
		fmt.Sprintf("Batch complete: %d documents, %d submitted, %d failed",
			created, len(submission.Processed), len(submission.Failed)))
}

// archiveSplitFile moves the batch file to archive/<parent-base>/<outcome>/.
// The move is best effort; a file it cannot move is deleted rather than left
// to be reprocessed.
func (p *Posbridge) archiveSplitFile(cfg *config.Configuration, split *model.SplitFile, outcome string) {
	archiveDir := filepath.Join(cfg.Pipeline.ArchivePath, parentBase(split.FileName), outcome)
	if err := files.ArchiveFile(split.FilePath, archiveDir); err != nil {
		logrus.WithError(err).Warnf("failed to archive split file %s", split.FilePath)
	}
}

// parentBase strips the _NNNN batch suffix to recover the source file's base
// name.
func parentBase(name string) string {
	base := baseName(name)
	if len(base) > 5 && base[len(base)-5] == '_' {
		return base[:len(base)-5]
	}
	return base
}

// readBatchRows loads one batch file produced by the splitter into raw rows.
// Batch files are bounded by invoices_per_file, so streaming element by
// element keeps memory at one row, not one file.
func readBatchRows(path string) ([]*model.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening batch file")
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "batch file is not valid JSON")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, errors.New("batch file is not a top-level JSON array")
	}

	rows := []*model.RawRow{}
	for dec.More() {
		var record map[string]interface{}
		if err := dec.Decode(&record); err != nil {
			return nil, errors.Wrap(err, "decoding batch record")
		}
		rows = append(rows, rawRowFromRecord(record))
	}
	return rows, nil
}

// rawRowFromRecord maps one decoded terminal record onto a raw row. Every
// field stays a string; the quality stage owns shape validation.
func rawRowFromRecord(record map[string]interface{}) *model.RawRow {
	return &model.RawRow{
		InvoicePK:         fieldString(record, "invoice_pk"),
		MarketID:          fieldString(record, "market_id"),
		NielsenCode:       fieldString(record, "nielsen_code"),
		MarketDescription: fieldString(record, "market_description"),
		DateTimestamp:     fieldString(record, "date_timestamp"),
		Day:               fieldString(record, "day"),
		Year:              fieldString(record, "year"),
		ReceiptNo:         fieldString(record, "receipt_no"),
		PosNo:             fieldString(record, "pos_no"),
		ItemCode:          fieldString(record, "item_code"),
		Barcode:           fieldString(record, "barcode"),
		ItemDescription:   fieldString(record, "item_description"),
		SalesPrice:        fieldString(record, "sales_price"),
		Quantity:          fieldString(record, "quantity"),
		DiscountPercent:   fieldString(record, "discount_percent"),
		DiscountValue:     fieldString(record, "discount_value"),
		TotalPrice:        fieldString(record, "total_price"),
		InvoiceTotal:      fieldString(record, "invoice_total"),
		TotalQuantity:     fieldString(record, "total_quantity"),
		PaymentMethod:     fieldString(record, "payment_method"),
		DateDescription:   fieldString(record, "date_description"),
		BillingType:       fieldString(record, "billing_type"),
	}
}
