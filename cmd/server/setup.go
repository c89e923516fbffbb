// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/services"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/workflow"
)

// StateManager holds the process-wide components built at startup.
type StateManager struct {
	config         *cloud.Config
	cloud          *cloud.ServiceClients
	ledger         services.Ledger
	projectService *services.ProjectService
	monitor        *workflow.StalePendingMonitor
}

var state = &StateManager{}

// SetupOS defaults the configuration directory to configs/ and the runtime to
// local unless the environment already names them.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			return nil, err
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// InitState creates the cloud clients, the ledger, the pipeline and the
// project service, and starts the stale pending monitor when scheduled.
func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	ledger, err := services.NewLedger(ctx, config.Ledger, cloudClients.BiqQueryClient)
	if err != nil {
		return err
	}
	state.ledger = ledger

	pipeline, err := workflow.NewProjectPipeline(config, cloudClients, ledger)
	if err != nil {
		return err
	}
	state.projectService = &services.ProjectService{
		Ledger:       ledger,
		Pipeline:     pipeline,
		ObjectStore:  cloudClients.ObjectStore,
		SignedURLTTL: cloud.Duration(config.Pipeline.SignedURLTTL, 0),
	}

	timeouts := config.Pipeline.Timeouts()
	state.monitor = workflow.NewStalePendingMonitor(ledger, cloud.Duration(config.Pipeline.StaleAfter, workflow.DefaultStaleAfter), timeouts.Ledger)
	if schedule := config.Pipeline.StaleCheckSchedule; schedule != "" {
		if err := state.monitor.Start(schedule); err != nil {
			return err
		}
		slog.InfoContext(ctx, "stale pending monitor started", "schedule", schedule)
	}
	return nil
}

// Close stops the monitor and releases the ledger and the cloud clients.
func (s *StateManager) Close() error {
	var err error
	if s.monitor != nil {
		s.monitor.Stop()
	}
	if s.ledger != nil {
		err = errors.Join(err, s.ledger.Close())
	}
	if s.cloud != nil {
		s.cloud.Close()
	}
	return err
}
