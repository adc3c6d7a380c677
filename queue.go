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
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kcsc/posbridge/config"
	redis_db "github.com/kcsc/posbridge/internal/redis-db"
)

// Queue represents a queue for handling file-split and batch tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// FileTaskPayload is the payload for a file-split task.
type FileTaskPayload struct {
	FileID string `json:"file_id"`
}

// BatchTaskPayload is the payload for a batch-pipeline task.
type BatchTaskPayload struct {
	SplitID string `json:"split_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueFileSplit enqueues an active file for splitting. The file id doubles
// as the task id so a re-scan of the same registration cannot enqueue twice.
func (q *Queue) EnqueueFileSplit(ctx context.Context, fileID string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(FileTaskPayload{FileID: fileID})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(fileID),
		asynq.Queue(cfg.Queue.FileQueue),
		asynq.Timeout(time.Duration(cfg.Queue.TaskTimeoutSec) * time.Second),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(cfg.Queue.FileQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued file split: %s", fileID)
	return nil
}

// EnqueueBatch enqueues one split file for the batch pipeline.
func (q *Queue) EnqueueBatch(ctx context.Context, splitID string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(BatchTaskPayload{SplitID: splitID})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(splitID),
		asynq.Queue(cfg.Queue.BatchQueue),
		asynq.Timeout(time.Duration(cfg.Queue.TaskTimeoutSec) * time.Second),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(cfg.Queue.BatchQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued batch: %s", splitID)
	return nil
}
