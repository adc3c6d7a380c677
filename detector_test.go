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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/model"
)

func TestScanInbox_DisabledPipelineScansNothing(t *testing.T) {
	bridge, ds := newTestBridge()
	cnf, err := config.Fetch()
	require.NoError(t, err)
	cnf.Pipeline.Disabled = true
	defer func() { cnf.Pipeline.Disabled = false }()

	registered, err := bridge.ScanInbox(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, registered)
	ds.AssertNotCalled(t, "RecordActiveFile", mock.Anything, mock.Anything)
}

func TestScanInbox_EmptyInboxScansNothing(t *testing.T) {
	bridge, ds := newTestBridge()
	cnf, err := config.Fetch()
	require.NoError(t, err)
	cnf.Pipeline.ActivePath = t.TempDir()

	registered, err := bridge.ScanInbox(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, registered)
	ds.AssertNotCalled(t, "ActiveFileInProgress", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterActiveFile_InFlightNameFailsRegistration(t *testing.T) {
	bridge, ds := newTestBridge()
	ctx := context.Background()
	cnf, err := config.Fetch()
	require.NoError(t, err)

	ds.On("ActiveFileInProgress", ctx, "terminal.json", mock.Anything).Return(true, nil)
	ds.On("RecordActiveFile", ctx, mock.MatchedBy(func(file *model.ActiveFile) bool {
		return file.FileName == "terminal.json" && file.Status == model.FileStatusReading
	})).Return(nil)
	ds.On("UpdateActiveFileStatus", ctx, mock.Anything, model.FileStatusFailed,
		"A file with this name is already being processed").Return(nil)

	err = bridge.registerActiveFile(ctx, cnf, "terminal.json")
	assert.NoError(t, err)
	ds.AssertExpectations(t)
}
