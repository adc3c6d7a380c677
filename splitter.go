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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/internal/files"
	"github.com/kcsc/posbridge/internal/notification"
	"github.com/kcsc/posbridge/model"
)

// splitBatch describes one output file produced by the splitter.
type splitBatch struct {
	Name    string
	Path    string
	Number  int
	Records int
}

// ProcessActiveFile splits one registered inbox file into invoice-coherent
// batch files and enqueues each batch for the pipeline. The source file is
// staged into the in-progress directory first and removed once the split
// lands; any failure marks the registration Failed with the error text.
func (p *Posbridge) ProcessActiveFile(ctx context.Context, fileID string) error {
	file, err := p.datasource.GetActiveFile(ctx, fileID)
	if err != nil {
		return err
	}
	if file.Status != model.FileStatusReading {
		logrus.Infof("active file %s is %s, skipping", fileID, file.Status)
		return nil
	}
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if err := p.splitActiveFile(ctx, cfg, file); err != nil {
		if statusErr := p.datasource.UpdateActiveFileStatus(ctx, fileID, model.FileStatusFailed, err.Error()); statusErr != nil {
			logrus.WithError(statusErr).Errorf("failed to mark active file %s failed", fileID)
		}
		notification.NotifyError(err)
		return err
	}
	return nil
}

func (p *Posbridge) splitActiveFile(ctx context.Context, cfg *config.Configuration, file *model.ActiveFile) error {
	if err := p.datasource.UpdateActiveFileStatus(ctx, file.FileID, model.FileStatusProcessing, "Validating file structure"); err != nil {
		return err
	}
	if err := validateInvoiceFile(file.FilePath); err != nil {
		return err
	}

	// Stage the source under its own in-progress directory; the split files
	// are written beside it so a crashed split leaves nothing in the inbox.
	workDir := filepath.Join(cfg.Pipeline.InProgressPath, baseName(file.FileName))
	if err := files.EnsureDir(workDir); err != nil {
		return errors.Wrap(err, "creating work directory")
	}
	workPath := filepath.Join(workDir, file.FileName)
	if err := files.MoveFile(file.FilePath, workPath); err != nil {
		return errors.Wrap(err, "staging file for split")
	}
	if err := p.datasource.UpdateActiveFilePath(ctx, file.FileID, workPath); err != nil {
		return err
	}

	if err := p.datasource.UpdateActiveFileStatus(ctx, file.FileID, model.FileStatusProcessing, "Splitting file into invoice-coherent batches"); err != nil {
		return err
	}
	batches, err := splitInvoiceFile(workPath, file.BatchSize)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		if err := os.Remove(workPath); err != nil {
			logrus.WithError(err).Warnf("failed to remove source file %s", workPath)
		}
		return p.datasource.UpdateActiveFileStatus(ctx, file.FileID, model.FileStatusCompleted, "No invoice keys found, nothing to split")
	}

	splits := make([]*model.SplitFile, 0, len(batches))
	for _, batch := range batches {
		splits = append(splits, &model.SplitFile{
			SplitID:      model.GenerateUUIDWithSuffix("split"),
			ParentFileID: file.FileID,
			FileName:     batch.Name,
			FilePath:     batch.Path,
			BatchNumber:  batch.Number,
			TotalRecords: batch.Records,
			Status:       model.BatchStatusPending,
		})
	}
	if err := p.datasource.RecordSplitFiles(ctx, splits); err != nil {
		return err
	}

	if err := os.Remove(workPath); err != nil {
		logrus.WithError(err).Warnf("failed to remove source file %s", workPath)
	}

	for _, split := range splits {
		if err := p.queue.EnqueueBatch(ctx, split.SplitID); err != nil {
			// The split stays Pending; a requeue sweep or manual run can
			// pick it up.
			logrus.WithError(err).Errorf("failed to enqueue batch %s", split.SplitID)
		}
	}
	return p.datasource.UpdateActiveFileStatus(ctx, file.FileID, model.FileStatusCompleted,
		fmt.Sprintf("Split into %d batches", len(splits)))
}

// validateInvoiceFile probes the file: it must be a top-level JSON array and,
// when non-empty, its first object must carry an invoice key.
func validateInvoiceFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "file is not valid JSON")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return errors.New("file is not a top-level JSON array")
	}
	if !dec.More() {
		return nil
	}
	var first map[string]interface{}
	if err := dec.Decode(&first); err != nil {
		return errors.Wrap(err, "decoding first record")
	}
	if invoiceKeyFromRecord(first) == "" {
		return errors.New("first record carries no invoice key")
	}
	return nil
}

// splitInvoiceFile partitions the array at path into batch files of up to
// invoicesPerFile distinct invoice keys each. Two streaming passes: key
// discovery in first-seen order, then a write pass routing every element to
// its key's batch. Memory cost is bounded by the number of distinct keys,
// never the number of rows. Returns nil batches when the file holds no keyed
// rows.
func splitInvoiceFile(path string, invoicesPerFile int) ([]*splitBatch, error) {
	if invoicesPerFile <= 0 {
		invoicesPerFile = config.FALLBACK_INVOICES_PER_FILE
	}
	if invoicesPerFile > config.MAX_INVOICES_PER_FILE {
		invoicesPerFile = config.MAX_INVOICES_PER_FILE
	}

	keyBatch, keyCount, err := discoverInvoiceKeys(path, invoicesPerFile)
	if err != nil {
		return nil, err
	}
	if keyCount == 0 {
		return nil, nil
	}
	numBatches := (keyCount + invoicesPerFile - 1) / invoicesPerFile

	return writeBatchFiles(path, keyBatch, numBatches)
}

func discoverInvoiceKeys(path string, invoicesPerFile int) (map[string]int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrap(err, "opening file for key discovery")
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, 0, errors.Wrap(err, "reading array start")
	}

	keyBatch := map[string]int{}
	distinct := 0
	for dec.More() {
		var record map[string]interface{}
		if err := dec.Decode(&record); err != nil {
			return nil, 0, errors.Wrap(err, "decoding record during key discovery")
		}
		key := invoiceKeyFromRecord(record)
		if key == "" {
			continue
		}
		if _, seen := keyBatch[key]; !seen {
			keyBatch[key] = distinct / invoicesPerFile
			distinct++
		}
	}
	return keyBatch, distinct, nil
}

func writeBatchFiles(path string, keyBatch map[string]int, numBatches int) (batches []*splitBatch, err error) {
	dir := filepath.Dir(path)
	base := baseName(filepath.Base(path))

	type batchWriter struct {
		file    *os.File
		buf     *bufio.Writer
		written bool
	}
	writers := make([]*batchWriter, 0, numBatches)
	batches = make([]*splitBatch, 0, numBatches)

	// All writers open up front; every open handle is closed on any exit
	// path, and partial outputs from a failed pass are removed.
	defer func() {
		if err == nil {
			return
		}
		for i, w := range writers {
			if w.file != nil {
				_ = w.file.Close()
				_ = os.Remove(batches[i].Path)
			}
		}
		batches = nil
	}()

	for i := 0; i < numBatches; i++ {
		name := fmt.Sprintf("%s_%04d.json", base, i+1)
		batchPath := filepath.Join(dir, name)
		out, createErr := os.Create(batchPath)
		if createErr != nil {
			err = errors.Wrap(createErr, "creating batch file")
			return
		}
		w := &batchWriter{file: out, buf: bufio.NewWriter(out)}
		if _, writeErr := w.buf.WriteString("[\n"); writeErr != nil {
			err = errors.Wrap(writeErr, "writing batch file")
			return
		}
		writers = append(writers, w)
		batches = append(batches, &splitBatch{Name: name, Path: batchPath, Number: i + 1})
	}

	src, openErr := os.Open(path)
	if openErr != nil {
		err = errors.Wrap(openErr, "opening file for write pass")
		return
	}
	defer src.Close()

	dec := json.NewDecoder(bufio.NewReader(src))
	if _, tokenErr := dec.Token(); tokenErr != nil {
		err = errors.Wrap(tokenErr, "reading array start")
		return
	}
	for dec.More() {
		var raw json.RawMessage
		if decodeErr := dec.Decode(&raw); decodeErr != nil {
			err = errors.Wrap(decodeErr, "decoding record during write pass")
			return
		}
		// Both passes must render keys identically, so numeric fields
		// stay json.Number here too. A plain Unmarshal would turn
		// invoice_pk 10000000 into the float64 text 1e+07 and the
		// keyBatch lookup would miss.
		var record map[string]interface{}
		rd := json.NewDecoder(bytes.NewReader(raw))
		rd.UseNumber()
		if unmarshalErr := rd.Decode(&record); unmarshalErr != nil {
			err = errors.Wrap(unmarshalErr, "parsing record during write pass")
			return
		}
		key := invoiceKeyFromRecord(record)
		if key == "" {
			continue
		}
		idx, routed := keyBatch[key]
		if !routed {
			continue
		}
		w := writers[idx]
		if w.written {
			if _, writeErr := w.buf.WriteString(",\n"); writeErr != nil {
				err = errors.Wrap(writeErr, "writing batch file")
				return
			}
		}
		if _, writeErr := w.buf.Write(raw); writeErr != nil {
			err = errors.Wrap(writeErr, "writing batch file")
			return
		}
		w.written = true
		batches[idx].Records++
	}

	for _, w := range writers {
		if _, writeErr := w.buf.WriteString("\n]"); writeErr != nil {
			err = errors.Wrap(writeErr, "closing batch file")
			return
		}
		if flushErr := w.buf.Flush(); flushErr != nil {
			err = errors.Wrap(flushErr, "flushing batch file")
			return
		}
		if closeErr := w.file.Close(); closeErr != nil {
			err = errors.Wrap(closeErr, "closing batch file")
			return
		}
		w.file = nil
	}
	return batches, nil
}

// invoiceKeyFromRecord extracts the routing key of one record: an explicit
// invoice_pk wins, otherwise the composite of market, terminal, year and
// receipt number when the identifying parts are present. Records without a
// key are unroutable.
func invoiceKeyFromRecord(record map[string]interface{}) string {
	if pk := fieldString(record, "invoice_pk"); pk != "" {
		return pk
	}
	marketID := fieldString(record, "market_id")
	posNo := fieldString(record, "pos_no")
	year := fieldString(record, "year")
	receiptNo := fieldString(record, "receipt_no")
	if marketID == "" || receiptNo == "" {
		return ""
	}
	return model.ComposeInvoiceKey(marketID, posNo, year, receiptNo)
}

// fieldString renders a decoded JSON value as its string form. Numbers keep
// their source text thanks to UseNumber.
func fieldString(record map[string]interface{}, field string) string {
	v, ok := record[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

func baseName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
