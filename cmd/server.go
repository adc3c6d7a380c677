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
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kcsc/posbridge/config"
)

/*
serverCommands returns the Cobra command responsible for running the inbox
scanner. The scanner wakes on the configured cron schedule, registers every
stable *.json file in the inbox, and queues it for splitting; the actual
split and batch work is done by the worker process.
*/
func serverCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the posbridge inbox scanner",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			scheduler := cron.New()
			_, err = scheduler.AddFunc(cfg.Pipeline.ScanSchedule, func() {
				registered, err := b.bridge.ScanInbox(ctx)
				if err != nil {
					logrus.WithError(err).Error("inbox scan failed")
					return
				}
				if registered > 0 {
					logrus.Infof("inbox scan registered %d files", registered)
				}
			})
			if err != nil {
				log.Fatalf("invalid scan schedule %q: %v", cfg.Pipeline.ScanSchedule, err)
			}

			log.Printf("Starting inbox scanner on schedule %q, watching %s", cfg.Pipeline.ScanSchedule, cfg.Pipeline.ActivePath)
			scheduler.Start()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Println("Shutting down inbox scanner")
			<-scheduler.Stop().Done()
		},
	}

	return cmd
}
