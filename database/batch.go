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
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/kcsc/posbridge/internal/apierror"
	"github.com/kcsc/posbridge/model"
)

// RecordActiveFile registers an inbox file for processing.
func (d Datasource) RecordActiveFile(ctx context.Context, file *model.ActiveFile) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO active_files (file_id, file_name, file_path, batch_size, status, status_description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, file.FileID, file.FileName, file.FilePath, file.BatchSize, file.Status, file.StatusDescription)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, "Active file already registered", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record active file", err)
	}
	return nil
}

// GetActiveFile retrieves an active file by ID.
func (d Datasource) GetActiveFile(ctx context.Context, id string) (*model.ActiveFile, error) {
	file := model.ActiveFile{}
	row := d.Conn.QueryRowContext(ctx, `
		SELECT file_id, file_name, file_path, batch_size, status,
			COALESCE(status_description, ''),
			COALESCE(TO_CHAR(start_time, 'YYYY-MM-DD HH24:MI:SS'), ''),
			COALESCE(TO_CHAR(end_time, 'YYYY-MM-DD HH24:MI:SS'), '')
		FROM active_files
		WHERE file_id = $1
	`, id)
	err := row.Scan(&file.FileID, &file.FileName, &file.FilePath, &file.BatchSize, &file.Status,
		&file.StatusDescription, &file.StartTime, &file.EndTime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Active file not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve active file", err)
	}
	return &file, nil
}

// ActiveFileInProgress reports whether a non-terminal record other than
// excludeID exists for the file name. The detector uses this to skip files
// already being worked on by another scan.
func (d Datasource) ActiveFileInProgress(ctx context.Context, fileName, excludeID string) (bool, error) {
	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM active_files
		WHERE file_name = $1 AND file_id != $2 AND status = ANY($3)
	`, fileName, excludeID, pq.Array([]string{model.FileStatusReading, model.FileStatusProcessing})).Scan(&count)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check active file progress", err)
	}
	return count > 0, nil
}

// UpdateActiveFileStatus updates the file's status and description. The first
// move to Processing stamps the start time; reaching a terminal status stamps
// the end time. Later Processing updates leave the recorded start alone.
func (d Datasource) UpdateActiveFileStatus(ctx context.Context, id, status, description string) error {
	query := `UPDATE active_files SET status = $1, status_description = $2`
	switch status {
	case model.FileStatusProcessing:
		query += `, start_time = COALESCE(start_time, NOW())`
	case model.FileStatusCompleted, model.FileStatusFailed:
		query += `, end_time = NOW()`
	}
	query += ` WHERE file_id = $3`

	res, err := d.Conn.ExecContext(ctx, query, status, description, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update active file status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update count", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Active file %s not found", id), nil)
	}
	return nil
}

// UpdateActiveFilePath records a file move between inbox, in-progress and
// archive directories.
func (d Datasource) UpdateActiveFilePath(ctx context.Context, id, path string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE active_files SET file_path = $1 WHERE file_id = $2
	`, path, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update active file path", err)
	}
	return nil
}

// RecordSplitFiles registers the batches produced by one split in a single
// transaction, so a crash mid-registration never leaves a partial batch list.
func (d Datasource) RecordSplitFiles(ctx context.Context, splits []*model.SplitFile) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	for _, split := range splits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO split_files (split_id, parent_file_id, file_name, file_path,
				batch_number, total_records, status, status_description)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, split.SplitID, split.ParentFileID, split.FileName, split.FilePath,
			split.BatchNumber, split.TotalRecords, split.Status, split.StatusDescription)
		if err != nil {
			_ = tx.Rollback()
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record split file", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit split files", err)
	}
	return nil
}

// GetSplitFile retrieves a split file by ID.
func (d Datasource) GetSplitFile(ctx context.Context, id string) (*model.SplitFile, error) {
	split := model.SplitFile{}
	row := d.Conn.QueryRowContext(ctx, `
		SELECT split_id, parent_file_id, file_name, file_path, batch_number, total_records,
			status, COALESCE(status_description, ''),
			COALESCE(TO_CHAR(start_time, 'YYYY-MM-DD HH24:MI:SS'), ''),
			COALESCE(TO_CHAR(end_time, 'YYYY-MM-DD HH24:MI:SS'), '')
		FROM split_files
		WHERE split_id = $1
	`, id)
	err := row.Scan(&split.SplitID, &split.ParentFileID, &split.FileName, &split.FilePath,
		&split.BatchNumber, &split.TotalRecords, &split.Status, &split.StatusDescription,
		&split.StartTime, &split.EndTime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Split file not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve split file", err)
	}
	return &split, nil
}

// GetPendingSplitFiles retrieves the parent's unprocessed splits in batch
// order.
func (d Datasource) GetPendingSplitFiles(ctx context.Context, parentID string) ([]*model.SplitFile, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT split_id, parent_file_id, file_name, file_path, batch_number, total_records,
			status, COALESCE(status_description, ''),
			COALESCE(TO_CHAR(start_time, 'YYYY-MM-DD HH24:MI:SS'), ''),
			COALESCE(TO_CHAR(end_time, 'YYYY-MM-DD HH24:MI:SS'), '')
		FROM split_files
		WHERE parent_file_id = $1 AND status = $2
		ORDER BY batch_number
	`, parentID, model.BatchStatusPending)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending split files", err)
	}
	defer rows.Close()

	splits := []*model.SplitFile{}
	for rows.Next() {
		split := model.SplitFile{}
		err := rows.Scan(&split.SplitID, &split.ParentFileID, &split.FileName, &split.FilePath,
			&split.BatchNumber, &split.TotalRecords, &split.Status, &split.StatusDescription,
			&split.StartTime, &split.EndTime)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan split file", err)
		}
		splits = append(splits, &split)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over split files", err)
	}
	return splits, nil
}

// UpdateSplitFileStatus updates the split's status and description with the
// same start/end stamping rules as active files.
func (d Datasource) UpdateSplitFileStatus(ctx context.Context, id, status, description string) error {
	query := `UPDATE split_files SET status = $1, status_description = $2`
	switch status {
	case model.BatchStatusProcessing:
		query += `, start_time = COALESCE(start_time, NOW())`
	case model.BatchStatusCompleted, model.BatchStatusFailed:
		query += `, end_time = NOW()`
	}
	query += ` WHERE split_id = $3`

	res, err := d.Conn.ExecContext(ctx, query, status, description, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update split file status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update count", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Split file %s not found", id), nil)
	}
	return nil
}
