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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Configuration {
	return &Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/posbridge"},
		Redis:      RedisConfig{Dns: "redis://localhost:6379"},
	}
}

func TestValidateAndAddDefaults_FillsDefaults(t *testing.T) {
	cnf := validConfig()
	require.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, "Posbridge", cnf.ProjectName)
	assert.Equal(t, "@every 1m", cnf.Pipeline.ScanSchedule)
	assert.Equal(t, DEFAULT_INVOICES_PER_FILE, cnf.Pipeline.InvoicesPerFile)
	assert.Equal(t, 3, cnf.Pipeline.StabilitySamples)
	assert.Equal(t, 2, cnf.Pipeline.StabilityIntervalSec)
	assert.Equal(t, 5000, cnf.Staging.InsertChunkSize)
	assert.Equal(t, 100, cnf.Staging.DocumentCommitInterval)
	assert.Equal(t, "posbridge:file", cnf.Queue.FileQueue)
	assert.Equal(t, "posbridge:batch", cnf.Queue.BatchQueue)
	assert.Equal(t, 7200, cnf.Queue.TaskTimeoutSec)
}

func TestValidateAndAddDefaults_RequiresDataSourceDNS(t *testing.T) {
	cnf := validConfig()
	cnf.DataSource.Dns = ""
	assert.Error(t, cnf.validateAndAddDefaults())
}

func TestValidateAndAddDefaults_RequiresRedisDNS(t *testing.T) {
	cnf := validConfig()
	cnf.Redis.Dns = ""
	assert.Error(t, cnf.validateAndAddDefaults())
}

func TestValidateAndAddDefaults_ClampsInvoicesPerFile(t *testing.T) {
	cnf := validConfig()
	cnf.Pipeline.InvoicesPerFile = MAX_INVOICES_PER_FILE + 1
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, MAX_INVOICES_PER_FILE, cnf.Pipeline.InvoicesPerFile)

	cnf = validConfig()
	cnf.Pipeline.InvoicesPerFile = -5
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, FALLBACK_INVOICES_PER_FILE, cnf.Pipeline.InvoicesPerFile)
}

func TestValidateAndAddDefaults_TrimsWhitespace(t *testing.T) {
	cnf := validConfig()
	cnf.ProjectName = "  Posbridge  "
	cnf.Pipeline.ActivePath = " /data/inbox "
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, "Posbridge", cnf.ProjectName)
	assert.Equal(t, "/data/inbox", cnf.Pipeline.ActivePath)
}

func TestFetch_ReturnsMockedConfig(t *testing.T) {
	cnf := validConfig()
	MockConfig(cnf)

	fetched, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, cnf, fetched)
}
