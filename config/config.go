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
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	// DEFAULT_INVOICES_PER_FILE is the number of invoice keys routed to one
	// split file when the config does not say otherwise.
	DEFAULT_INVOICES_PER_FILE = 1000
	// MAX_INVOICES_PER_FILE caps the split batch size; a larger value is
	// clamped rather than rejected.
	MAX_INVOICES_PER_FILE = 5000
	// FALLBACK_INVOICES_PER_FILE replaces non-positive configured values.
	FALLBACK_INVOICES_PER_FILE = 100
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"POSBRIDGE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"POSBRIDGE_REDIS_DNS"`
}

// PipelineConfig holds the file-flow settings: where incoming files land,
// where batches are staged while processing, and where they are archived.
type PipelineConfig struct {
	Disabled             bool   `json:"disabled" envconfig:"POSBRIDGE_PIPELINE_DISABLED"`
	ActivePath           string `json:"active_path" envconfig:"POSBRIDGE_ACTIVE_PATH"`
	InProgressPath       string `json:"in_progress_path" envconfig:"POSBRIDGE_IN_PROGRESS_PATH"`
	ArchivePath          string `json:"archive_path" envconfig:"POSBRIDGE_ARCHIVE_PATH"`
	ScanSchedule         string `json:"scan_schedule" envconfig:"POSBRIDGE_SCAN_SCHEDULE"`
	InvoicesPerFile      int    `json:"invoices_per_file" envconfig:"POSBRIDGE_INVOICES_PER_FILE"`
	StabilitySamples     int    `json:"stability_samples" envconfig:"POSBRIDGE_STABILITY_SAMPLES"`
	StabilityIntervalSec int    `json:"stability_interval_sec" envconfig:"POSBRIDGE_STABILITY_INTERVAL_SEC"`
}

// StagingConfig bounds the chunked commit behaviour of the staging writes.
type StagingConfig struct {
	InsertChunkSize        int `json:"insert_chunk_size" envconfig:"POSBRIDGE_INSERT_CHUNK_SIZE"`
	DocumentCommitInterval int `json:"document_commit_interval" envconfig:"POSBRIDGE_DOCUMENT_COMMIT_INTERVAL"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"POSBRIDGE_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type QueueConfig struct {
	FileQueue        string `json:"file_queue" envconfig:"POSBRIDGE_FILE_QUEUE"`
	BatchQueue       string `json:"batch_queue" envconfig:"POSBRIDGE_BATCH_QUEUE"`
	TaskTimeoutSec   int    `json:"task_timeout_sec" envconfig:"POSBRIDGE_TASK_TIMEOUT_SEC"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"POSBRIDGE_MAX_RETRY_ATTEMPTS"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"POSBRIDGE_PROJECT_NAME"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Pipeline     PipelineConfig   `json:"pipeline"`
	Staging      StagingConfig    `json:"staging"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("posbridge", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called posbridge.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Posbridge"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Pipeline.ActivePath = strings.TrimSpace(cnf.Pipeline.ActivePath)
	cnf.Pipeline.InProgressPath = strings.TrimSpace(cnf.Pipeline.InProgressPath)
	cnf.Pipeline.ArchivePath = strings.TrimSpace(cnf.Pipeline.ArchivePath)

	if cnf.Pipeline.ScanSchedule == "" {
		cnf.Pipeline.ScanSchedule = "@every 1m"
	}
	if cnf.Pipeline.InvoicesPerFile == 0 {
		cnf.Pipeline.InvoicesPerFile = DEFAULT_INVOICES_PER_FILE
	}
	if cnf.Pipeline.InvoicesPerFile < 0 {
		log.Printf("Warning: invoices_per_file %d is not positive. Using fallback %d", cnf.Pipeline.InvoicesPerFile, FALLBACK_INVOICES_PER_FILE)
		cnf.Pipeline.InvoicesPerFile = FALLBACK_INVOICES_PER_FILE
	}
	if cnf.Pipeline.InvoicesPerFile > MAX_INVOICES_PER_FILE {
		log.Printf("Warning: invoices_per_file %d exceeds maximum. Clamping to %d", cnf.Pipeline.InvoicesPerFile, MAX_INVOICES_PER_FILE)
		cnf.Pipeline.InvoicesPerFile = MAX_INVOICES_PER_FILE
	}
	if cnf.Pipeline.StabilitySamples <= 0 {
		cnf.Pipeline.StabilitySamples = 3
	}
	if cnf.Pipeline.StabilityIntervalSec <= 0 {
		cnf.Pipeline.StabilityIntervalSec = 2
	}

	if cnf.Staging.InsertChunkSize <= 0 {
		cnf.Staging.InsertChunkSize = 5000
	}
	if cnf.Staging.DocumentCommitInterval <= 0 {
		cnf.Staging.DocumentCommitInterval = 100
	}

	if cnf.Queue.FileQueue == "" {
		cnf.Queue.FileQueue = "posbridge:file"
	}
	if cnf.Queue.BatchQueue == "" {
		cnf.Queue.BatchQueue = "posbridge:batch"
	}
	if cnf.Queue.TaskTimeoutSec <= 0 {
		// long-running splits of multi-gigabyte files need generous room
		cnf.Queue.TaskTimeoutSec = 7200
	}
	if cnf.Queue.MaxRetryAttempts < 0 {
		cnf.Queue.MaxRetryAttempts = 0
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
