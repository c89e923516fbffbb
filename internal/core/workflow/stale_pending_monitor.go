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

package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/services"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const DefaultStaleAfter = time.Hour

// StalePendingMonitor reports projects that stayed pending longer than a
// pipeline run can take. Such a project means the process died mid run. The
// monitor only logs and counts them; it never changes the ledger.
type StalePendingMonitor struct {
	ledger     services.Ledger
	staleAfter time.Duration
	timeout    time.Duration
	scheduler  *cron.Cron
	counter    metric.Int64Counter
	now        func() time.Time
}

func NewStalePendingMonitor(ledger services.Ledger, staleAfter time.Duration, timeout time.Duration) *StalePendingMonitor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	counter, err := otel.Meter(cor.MeterName).Int64Counter("project.stale_pending")
	if err != nil {
		slog.Warn("error creating stale pending counter", "error", err)
	}
	return &StalePendingMonitor{
		ledger:     ledger,
		staleAfter: staleAfter,
		timeout:    timeout,
		scheduler:  cron.New(),
		counter:    counter,
		now:        time.Now,
	}
}

// Check lists pending projects older than the stale threshold, logs each at
// WARN and returns them.
func (m *StalePendingMonitor) Check(ctx context.Context) ([]*model.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cutoff := m.now().Add(-m.staleAfter)
	stale, err := m.ledger.ListStalePending(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, p := range stale {
		slog.WarnContext(ctx, "project pending beyond expected run time",
			"project_id", p.ID,
			"owner_id", p.OwnerID,
			"created", p.CreatedDate,
			"pending_for", m.now().Sub(p.CreatedDate).Round(time.Second).String())
	}
	if len(stale) > 0 && m.counter != nil {
		m.counter.Add(ctx, int64(len(stale)))
	}
	return stale, nil
}

// Start schedules Check with a standard five field cron spec.
func (m *StalePendingMonitor) Start(schedule string) error {
	_, err := m.scheduler.AddFunc(schedule, func() {
		if _, err := m.Check(context.Background()); err != nil {
			slog.Error("stale pending check failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	m.scheduler.Start()
	return nil
}

// Stop halts the schedule and waits for a running check to return.
func (m *StalePendingMonitor) Stop() {
	<-m.scheduler.Stop().Done()
}
