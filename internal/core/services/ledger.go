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

// Package services holds the project ledger backends and the ProjectService
// used by the HTTP layer.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
)

// ErrProjectNotPending is returned when a terminal project is updated again.
var ErrProjectNotPending = errors.New("project is not pending")

// ProjectUpdate is the terminal write applied to a pending project. Segments
// replaces the stored list; a nil slice is stored as empty.
type ProjectUpdate struct {
	State            model.ProjectState
	Segments         []*model.Segment
	OriginalVideoURL string
}

// Ledger persists one record per project. Implementations must allow
// concurrent calls for different project ids.
type Ledger interface {
	// Create stores a pending project with no video URL and no segments.
	Create(ctx context.Context, id string, ownerID string, name string) error
	// Update applies the terminal write. Only a pending project can be updated.
	Update(ctx context.Context, id string, update ProjectUpdate) error
	Get(ctx context.Context, id string) (*model.Project, error)
	// ListByOwner returns the owner's projects, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Project, error)
	// ListStalePending returns pending projects created before the cutoff.
	ListStalePending(ctx context.Context, before time.Time) ([]*model.Project, error)
	Close() error
}

func validateUpdate(update ProjectUpdate) error {
	if !update.State.IsTerminal() {
		return errors.New("update must move the project to a terminal state")
	}
	if update.State == model.ProjectStateFailed && len(update.Segments) > 0 {
		return errors.New("a failed project cannot carry segments")
	}
	if update.State == model.ProjectStateCompleted {
		return model.ValidateCompleted(update.Segments)
	}
	return nil
}

// NewLedger opens the backend selected by cfg and wraps it in a CachedLedger
// when cfg.CacheSize is positive. bq is only used by the bigquery backend.
func NewLedger(ctx context.Context, cfg cloud.Ledger, bq *bigquery.Client) (Ledger, error) {
	var (
		ledger Ledger
		err    error
	)
	switch cfg.Backend {
	case cloud.LedgerBackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "data/projects.db"
		}
		ledger, err = NewSQLiteLedger(ctx, dsn)
	case cloud.LedgerBackendPostgres:
		ledger, err = NewPostgresLedger(ctx, cfg.DSN)
	case cloud.LedgerBackendBigQuery:
		if bq == nil {
			return nil, errors.New("bigquery ledger requires a bigquery client")
		}
		bqLedger := NewBigQueryLedger(bq, cfg.Dataset, cfg.Table)
		err = bqLedger.EnsureTable(ctx)
		ledger = bqLedger
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", cfg.Backend, err)
	}

	if cfg.CacheSize <= 0 {
		return ledger, nil
	}
	cached, err := NewCachedLedger(ledger, cfg.CacheSize)
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}
	return cached, nil
}
