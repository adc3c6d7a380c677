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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kcsc/posbridge"
	"github.com/kcsc/posbridge/config"
	redis_db "github.com/kcsc/posbridge/internal/redis-db"
)

// processFileSplit handles one file-split task from the Redis queue: the
// registered inbox file is validated, staged, and split into batch files.
// An error return pushes the task back for retry.
func (b *bridgeInstance) processFileSplit(ctx context.Context, t *asynq.Task) error {
	var payload posbridge.FileTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.bridge.ProcessActiveFile(ctx, payload.FileID); err != nil {
		logrus.Infof("File %s pushed back for retry due to error: %v", payload.FileID, err)
		return err
	}

	log.Println(" [*] File Split", payload.FileID)
	return nil
}

// processBatch handles one batch task: intake, quality check, aggregation
// and submission for a single split file.
func (b *bridgeInstance) processBatch(ctx context.Context, t *asynq.Task) error {
	var payload posbridge.BatchTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.bridge.ProcessSplitFile(ctx, payload.SplitID); err != nil {
		logrus.Infof("Batch %s pushed back for retry due to error: %v", payload.SplitID, err)
		return err
	}

	log.Println(" [*] Batch Processed", payload.SplitID)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	// Splitting is I/O bound and cheap; batch processing owns the heavy
	// database work and runs one at a time per worker.
	queues := make(map[string]int)
	queues[cfg.Queue.FileQueue] = 2
	queues[cfg.Queue.BatchQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *bridgeInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(cfg.Queue.FileQueue, b.processFileSplit)
	mux.HandleFunc(cfg.Queue.BatchQueue, b.processBatch)
}

// workerCommands defines the "workers" command to start the worker process
// listening on the file-split and batch queues.
func workerCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start posbridge workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
