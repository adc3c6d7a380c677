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
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// runCommands groups the one-shot pipeline operations. They run the same
// code paths the workers do, inline and without Redis, which makes them the
// operational escape hatch when a file or batch needs a manual push.
func runCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one pipeline step inline",
	}

	cmd.AddCommand(runScanCommand(b))
	cmd.AddCommand(runSplitCommand(b))
	cmd.AddCommand(runBatchCommand(b))
	cmd.AddCommand(runSubmitCommand(b))

	return cmd
}

func runScanCommand(b *bridgeInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "scan the inbox once",
		Run: func(cmd *cobra.Command, args []string) {
			registered, err := b.bridge.ScanInbox(context.Background())
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("Registered %d files\n", registered)
		},
	}
}

func runSplitCommand(b *bridgeInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "split <file-id>",
		Short: "split one registered file inline",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := b.bridge.ProcessActiveFile(context.Background(), args[0]); err != nil {
				log.Fatal(err)
			}
			fmt.Println("Split complete")
		},
	}
}

func runBatchCommand(b *bridgeInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <split-id>",
		Short: "process one split batch inline",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := b.bridge.ProcessSplitFile(context.Background(), args[0]); err != nil {
				log.Fatal(err)
			}
			fmt.Println("Batch complete")
		},
	}
}

func runSubmitCommand(b *bridgeInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "submit all pending checked documents",
		Run: func(cmd *cobra.Command, args []string) {
			result, err := b.bridge.SubmitDocuments(context.Background())
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("Submitted %d documents, %d failed\n", len(result.Processed), len(result.Failed))
		},
	}
}
