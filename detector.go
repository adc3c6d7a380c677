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
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/internal/files"
	"github.com/kcsc/posbridge/model"
)

// ScanInbox runs one detection pass over the inbox directory: every *.json
// file whose size has held steady across the configured samples is registered
// as an active file and queued for splitting. Returns the number of files
// registered.
//
// A file name that already has a registration still in flight is registered
// as Failed instead of queued, so a slow upload re-appearing in the inbox
// cannot be processed twice.
func (p *Posbridge) ScanInbox(ctx context.Context) (int, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	if cfg.Pipeline.Disabled {
		logrus.Debug("pipeline disabled, skipping inbox scan")
		return 0, nil
	}

	names, err := files.ListJSONFiles(cfg.Pipeline.ActivePath)
	if err != nil {
		return 0, errors.Wrap(err, "listing inbox")
	}
	if len(names) == 0 {
		return 0, nil
	}

	interval := time.Duration(cfg.Pipeline.StabilityIntervalSec) * time.Second
	stable := files.StableFiles(cfg.Pipeline.ActivePath, names, cfg.Pipeline.StabilitySamples, interval)

	registered := 0
	for _, name := range stable {
		if err := p.registerActiveFile(ctx, cfg, name); err != nil {
			logrus.WithError(err).Errorf("failed to register inbox file %s", name)
			continue
		}
		registered++
	}
	return registered, nil
}

func (p *Posbridge) registerActiveFile(ctx context.Context, cfg *config.Configuration, name string) error {
	file := &model.ActiveFile{
		FileID:    model.GenerateUUIDWithSuffix("file"),
		FileName:  name,
		FilePath:  filepath.Join(cfg.Pipeline.ActivePath, name),
		BatchSize: cfg.Pipeline.InvoicesPerFile,
		Status:    model.FileStatusReading,
	}

	inProgress, err := p.datasource.ActiveFileInProgress(ctx, name, file.FileID)
	if err != nil {
		return err
	}
	if err := p.datasource.RecordActiveFile(ctx, file); err != nil {
		return err
	}
	if inProgress {
		logrus.Warnf("file %s is already being processed, marking duplicate registration failed", name)
		return p.datasource.UpdateActiveFileStatus(ctx, file.FileID, model.FileStatusFailed,
			"A file with this name is already being processed")
	}
	return p.queue.EnqueueFileSplit(ctx, file.FileID)
}
