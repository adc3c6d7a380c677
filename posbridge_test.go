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
	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/database/mocks"
)

// newTestBridge wires a Posbridge onto a mock datasource with a small,
// deterministic configuration. The queue stays nil; tests that enqueue
// provide their own.
func newTestBridge() (*Posbridge, *mocks.MockDataSource) {
	cnf := &config.Configuration{
		ProjectName: "Posbridge",
		Pipeline: config.PipelineConfig{
			ActivePath:           "/tmp/posbridge/active",
			InProgressPath:       "/tmp/posbridge/inprogress",
			ArchivePath:          "/tmp/posbridge/archive",
			InvoicesPerFile:      100,
			StabilitySamples:     1,
			StabilityIntervalSec: 1,
		},
		Staging: config.StagingConfig{
			InsertChunkSize:        5000,
			DocumentCommitInterval: 100,
		},
		Queue: config.QueueConfig{
			FileQueue:  "posbridge:file",
			BatchQueue: "posbridge:batch",
		},
	}
	config.MockConfig(cnf)

	ds := new(mocks.MockDataSource)
	return &Posbridge{datasource: ds}, ds
}
