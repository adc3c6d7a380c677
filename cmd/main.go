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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kcsc/posbridge"
	"github.com/kcsc/posbridge/config"
	"github.com/kcsc/posbridge/database"
	"github.com/kcsc/posbridge/internal/notification"
)

// Posbridge represents the CLI application, encapsulating the root Cobra
// command.
type Posbridge struct {
	cmd *cobra.Command
}

// bridgeInstance holds the runtime Posbridge instance and its configuration,
// shared by every subcommand through the persistent pre-run hook.
type bridgeInstance struct {
	bridge *posbridge.Posbridge
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the Posbridge instance
// before any command runs.
func preRun(app *bridgeInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("posbridge.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newBridge, err := setupBridge(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.bridge = newBridge
		app.cnf = cnf
		return nil
	}
}

func setupBridge(cfg *config.Configuration) (*posbridge.Posbridge, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newBridge, err := posbridge.NewPosbridge(db)
	if err != nil {
		return nil, fmt.Errorf("error creating posbridge: %v", err)
	}
	return newBridge, nil
}

// NewCLI builds the command-line interface with the server, worker,
// migration and one-shot run subcommands.
func NewCLI() *Posbridge {
	var configFile string
	b := &bridgeInstance{}

	var rootCmd = &cobra.Command{
		Use:   "posbridge",
		Short: "POS invoice import pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./posbridge.json", "Configuration file for posbridge")
	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(runCommands(b))

	return &Posbridge{cmd: rootCmd}
}

func (w Posbridge) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
