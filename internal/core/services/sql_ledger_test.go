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

package services_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/services"
	"github.com/zeebo/assert"
)

func newSQLiteLedger(t *testing.T) *services.SQLLedger {
	t.Helper()
	ledger, err := services.NewSQLiteLedger(context.Background(), filepath.Join(t.TempDir(), "ledger", "projects.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func completedSegments() []*model.Segment {
	return []*model.Segment{
		{Rank: 2, Start: 30, End: 55, Reason: "second", FilePath: "https://cdn.example.com/b.mp4"},
		{Rank: 1, Start: 2, End: 18, Reason: "first", FilePath: "https://cdn.example.com/a.mp4"},
	}
}

func TestSQLLedgerCreateAndGet(t *testing.T) {
	ctx := context.Background()
	ledger := newSQLiteLedger(t)

	assert.NoError(t, ledger.Create(ctx, "p-1", "owner-1", "Launch video"))

	p, err := ledger.Get(ctx, "p-1")
	assert.NoError(t, err)
	assert.Equal(t, p.ID, "p-1")
	assert.Equal(t, p.OwnerID, "owner-1")
	assert.Equal(t, p.Name, "Launch video")
	assert.Equal(t, p.State, model.ProjectStatePending)
	assert.Equal(t, p.OriginalVideoURL, "")
	assert.Equal(t, len(p.DetectedSegments), 0)
	assert.False(t, p.CreatedDate.IsZero())

	err = ledger.Create(ctx, "p-1", "owner-2", "")
	assert.True(t, errors.Is(err, services.ErrProjectExists))

	_, err = ledger.Get(ctx, "missing")
	assert.True(t, errors.Is(err, services.ErrProjectNotFound))
}

func TestSQLLedgerCompletedUpdate(t *testing.T) {
	ctx := context.Background()
	ledger := newSQLiteLedger(t)
	assert.NoError(t, ledger.Create(ctx, "p-1", "owner-1", ""))

	err := ledger.Update(ctx, "p-1", services.ProjectUpdate{
		State:            model.ProjectStateCompleted,
		Segments:         completedSegments(),
		OriginalVideoURL: "https://cdn.example.com/original.mp4",
	})
	assert.NoError(t, err)

	p, err := ledger.Get(ctx, "p-1")
	assert.NoError(t, err)
	assert.Equal(t, p.State, model.ProjectStateCompleted)
	assert.Equal(t, p.OriginalVideoURL, "https://cdn.example.com/original.mp4")
	assert.Equal(t, len(p.DetectedSegments), 2)
	assert.NoError(t, model.ValidateCompleted(p.DetectedSegments))

	err = ledger.Update(ctx, "p-1", services.ProjectUpdate{State: model.ProjectStateFailed})
	assert.True(t, errors.Is(err, services.ErrProjectNotPending))

	err = ledger.Update(ctx, "missing", services.ProjectUpdate{State: model.ProjectStateFailed})
	assert.True(t, errors.Is(err, services.ErrProjectNotFound))
}

func TestSQLLedgerRejectsInvalidUpdates(t *testing.T) {
	ctx := context.Background()
	ledger := newSQLiteLedger(t)
	assert.NoError(t, ledger.Create(ctx, "p-1", "owner-1", ""))

	assert.Error(t, ledger.Update(ctx, "p-1", services.ProjectUpdate{State: model.ProjectStatePending}))
	assert.Error(t, ledger.Update(ctx, "p-1", services.ProjectUpdate{State: model.ProjectStateCompleted}))
	assert.Error(t, ledger.Update(ctx, "p-1", services.ProjectUpdate{
		State:    model.ProjectStateFailed,
		Segments: completedSegments(),
	}))
	assert.Error(t, ledger.Update(ctx, "p-1", services.ProjectUpdate{
		State:    model.ProjectStateCompleted,
		Segments: []*model.Segment{{Rank: 1, Start: 0, End: 5, Reason: "r", FilePath: "/tmp/segment_1.mp4"}},
	}))

	p, err := ledger.Get(ctx, "p-1")
	assert.NoError(t, err)
	assert.Equal(t, p.State, model.ProjectStatePending)
}

func TestSQLLedgerFailedUpdateStoresEmptySegments(t *testing.T) {
	ctx := context.Background()
	ledger := newSQLiteLedger(t)
	assert.NoError(t, ledger.Create(ctx, "p-1", "owner-1", ""))

	assert.NoError(t, ledger.Update(ctx, "p-1", services.ProjectUpdate{State: model.ProjectStateFailed}))

	p, err := ledger.Get(ctx, "p-1")
	assert.NoError(t, err)
	assert.Equal(t, p.State, model.ProjectStateFailed)
	assert.NotNil(t, p.DetectedSegments)
	assert.Equal(t, len(p.DetectedSegments), 0)
}

func TestSQLLedgerListings(t *testing.T) {
	ctx := context.Background()
	ledger := newSQLiteLedger(t)

	assert.NoError(t, ledger.Create(ctx, "old", "owner-1", ""))
	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, ledger.Create(ctx, "new", "owner-1", ""))
	assert.NoError(t, ledger.Create(ctx, "other", "owner-2", ""))
	assert.NoError(t, ledger.Update(ctx, "new", services.ProjectUpdate{State: model.ProjectStateFailed}))

	owned, err := ledger.ListByOwner(ctx, "owner-1")
	assert.NoError(t, err)
	assert.Equal(t, len(owned), 2)
	assert.Equal(t, owned[0].ID, "new")
	assert.Equal(t, owned[1].ID, "old")

	none, err := ledger.ListByOwner(ctx, "nobody")
	assert.NoError(t, err)
	assert.Equal(t, len(none), 0)

	stale, err := ledger.ListStalePending(ctx, time.Now().Add(time.Minute))
	assert.NoError(t, err)
	assert.Equal(t, len(stale), 2)
	for _, p := range stale {
		assert.Equal(t, p.State, model.ProjectStatePending)
	}

	fresh, err := ledger.ListStalePending(ctx, time.Now().Add(-time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, len(fresh), 0)
}

func TestSQLLedgerConcurrentProjects(t *testing.T) {
	ctx := context.Background()
	ledger := newSQLiteLedger(t)

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*2)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Create(ctx, id, "owner-1", ""); err != nil {
				errs <- err
				return
			}
			errs <- ledger.Update(ctx, id, services.ProjectUpdate{State: model.ProjectStateFailed})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	for _, id := range ids {
		p, err := ledger.Get(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, p.State, model.ProjectStateFailed)
	}
}
