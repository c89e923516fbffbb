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

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// segmentRow and projectRow are the BigQuery shapes of the model types.
type segmentRow struct {
	Rank     int64   `bigquery:"rank"`
	Start    float64 `bigquery:"start"`
	End      float64 `bigquery:"end"`
	Reason   string  `bigquery:"reason"`
	FilePath string  `bigquery:"file_path"`
}

type projectRow struct {
	ID               string       `bigquery:"id"`
	OwnerID          string       `bigquery:"owner_id"`
	Name             string       `bigquery:"name"`
	OriginalVideoURL string       `bigquery:"original_video_url"`
	DetectedSegments []segmentRow `bigquery:"detected_segments"`
	State            string       `bigquery:"state"`
	CreatedDate      time.Time    `bigquery:"created_date"`
}

func (r *projectRow) toModel() *model.Project {
	p := &model.Project{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Name:             r.Name,
		OriginalVideoURL: r.OriginalVideoURL,
		DetectedSegments: make([]*model.Segment, 0, len(r.DetectedSegments)),
		State:            model.ProjectState(r.State),
		CreatedDate:      r.CreatedDate.UTC(),
	}
	for _, s := range r.DetectedSegments {
		p.DetectedSegments = append(p.DetectedSegments, &model.Segment{
			Rank: int(s.Rank), Start: s.Start, End: s.End, Reason: s.Reason, FilePath: s.FilePath,
		})
	}
	model.SortByRank(p.DetectedSegments)
	return p
}

func toSegmentRows(segments []*model.Segment) []segmentRow {
	rows := make([]segmentRow, 0, len(segments))
	for _, s := range segments {
		rows = append(rows, segmentRow{Rank: int64(s.Rank), Start: s.Start, End: s.End, Reason: s.Reason, FilePath: s.FilePath})
	}
	return rows
}

// BigQueryLedger keeps projects in a BigQuery table. Writes are DML
// statements, so every call is a query job.
type BigQueryLedger struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	ProjectTable   string
	now            func() time.Time
}

func NewBigQueryLedger(client *bigquery.Client, dataset string, table string) *BigQueryLedger {
	return &BigQueryLedger{BigqueryClient: client, DatasetName: dataset, ProjectTable: table, now: time.Now}
}

func (l *BigQueryLedger) GetFQN() string {
	fqn := l.BigqueryClient.Dataset(l.DatasetName).Table(l.ProjectTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// EnsureTable creates the project table from projectRow when it is missing.
func (l *BigQueryLedger) EnsureTable(ctx context.Context) error {
	table := l.BigqueryClient.Dataset(l.DatasetName).Table(l.ProjectTable)
	if _, err := table.Metadata(ctx); err == nil {
		return nil
	} else if !isBigQueryNotFound(err) {
		return err
	}
	schema, err := bigquery.InferSchema(projectRow{})
	if err != nil {
		return err
	}
	err = table.Create(ctx, &bigquery.TableMetadata{Schema: schema})
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	return err
}

func (l *BigQueryLedger) Close() error {
	return nil
}

func (l *BigQueryLedger) Create(ctx context.Context, id string, ownerID string, name string) error {
	affected, err := l.exec(ctx, fmt.Sprintf(QryCreateProject, l.GetFQN()), []bigquery.QueryParameter{
		{Name: "id", Value: id},
		{Name: "owner_id", Value: ownerID},
		{Name: "name", Value: name},
		{Name: "state", Value: string(model.ProjectStatePending)},
		{Name: "created_date", Value: l.now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to create project %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrProjectExists, id)
	}
	return nil
}

func (l *BigQueryLedger) Update(ctx context.Context, id string, update ProjectUpdate) error {
	if err := validateUpdate(update); err != nil {
		return fmt.Errorf("invalid update for project %s: %w", id, err)
	}
	affected, err := l.exec(ctx, fmt.Sprintf(QryUpdateProject, l.GetFQN()), []bigquery.QueryParameter{
		{Name: "id", Value: id},
		{Name: "state", Value: string(update.State)},
		{Name: "segments", Value: toSegmentRows(update.Segments)},
		{Name: "original_video_url", Value: update.OriginalVideoURL},
		{Name: "pending", Value: string(model.ProjectStatePending)},
	})
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := l.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrProjectNotPending, id)
}

func (l *BigQueryLedger) Get(ctx context.Context, id string) (*model.Project, error) {
	projects, err := l.read(ctx, fmt.Sprintf(QryFindProjectById, l.GetFQN()), []bigquery.QueryParameter{{Name: "id", Value: id}})
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return projects[0], nil
}

func (l *BigQueryLedger) ListByOwner(ctx context.Context, ownerID string) ([]*model.Project, error) {
	return l.read(ctx, fmt.Sprintf(QryListProjectsByOwner, l.GetFQN()), []bigquery.QueryParameter{{Name: "owner_id", Value: ownerID}})
}

func (l *BigQueryLedger) ListStalePending(ctx context.Context, before time.Time) ([]*model.Project, error) {
	return l.read(ctx, fmt.Sprintf(QryListStalePending, l.GetFQN()), []bigquery.QueryParameter{
		{Name: "pending", Value: string(model.ProjectStatePending)},
		{Name: "before", Value: before.UTC()},
	})
}

// exec runs a DML statement and returns the number of affected rows.
func (l *BigQueryLedger) exec(ctx context.Context, queryText string, params []bigquery.QueryParameter) (int64, error) {
	q := l.BigqueryClient.Query(queryText)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return 0, err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, err
	}
	if err := status.Err(); err != nil {
		return 0, err
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

func (l *BigQueryLedger) read(ctx context.Context, queryText string, params []bigquery.QueryParameter) ([]*model.Project, error) {
	q := l.BigqueryClient.Query(queryText)
	q.Parameters = params
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Project, 0)
	for {
		var row projectRow
		err := itr.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row.toModel())
	}
	return out, nil
}

func isBigQueryNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
