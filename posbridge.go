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
	"github.com/sirupsen/logrus"

	"github.com/kcsc/posbridge/cache"
	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/database"
)

// Posbridge drives the POS transaction pipeline: inbox scanning, invoice
// splitting, batch staging, aggregation and accounting-document submission.
type Posbridge struct {
	queue      *Queue
	datasource database.IDataSource
	cache      cache.Cache
}

// NewPosbridge initializes the pipeline service with the provided datasource.
// It fetches the configuration and wires the job queue.
//
// Parameters:
// - db database.IDataSource: The datasource for staging and document storage.
//
// Returns:
// - *Posbridge: A pointer to the newly created Posbridge instance.
// - error: An error if any of the initialization steps fail.
func NewPosbridge(db database.IDataSource) (*Posbridge, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newCache, err := cache.NewCache()
	if err != nil {
		// The registry cache is an optimization; the pipeline reads straight
		// from the database without it.
		logrus.WithError(err).Warn("cache unavailable, reference data will not be cached")
		newCache = nil
	}
	return &Posbridge{datasource: db, queue: newQueue, cache: newCache}, nil
}
