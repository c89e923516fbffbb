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
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
)

var (
	// ErrUnauthorized is returned for a project the caller does not own and,
	// so that existence is not revealed, for a project that does not exist.
	ErrUnauthorized = errors.New("unauthorized")

	ErrSegmentNotFound     = errors.New("segment not found")
	ErrProjectNotCompleted = errors.New("project is not completed")
)

// Pipeline runs one project to a terminal state.
type Pipeline interface {
	Run(ctx context.Context, request *model.ProjectRequest) ([]*model.Segment, error)
}

// ProjectService is the entry point used by the HTTP layer. Callers pass an
// owner id that has already been authenticated.
type ProjectService struct {
	Ledger       Ledger
	Pipeline     Pipeline
	ObjectStore  cloud.ObjectStore
	SignedURLTTL time.Duration
}

// CreateProject runs the pipeline synchronously and returns the finalized
// segments.
func (s *ProjectService) CreateProject(ctx context.Context, ownerID string, projectID string, name string,
	video []byte, fileName string, bucket model.SegmentLengthBucket) ([]*model.Segment, error) {
	return s.Pipeline.Run(ctx, &model.ProjectRequest{
		ProjectID:     projectID,
		OwnerID:       ownerID,
		Name:          name,
		FileName:      fileName,
		Video:         video,
		SegmentLength: bucket,
	})
}

// GetProject returns the project when ownerID owns it.
func (s *ProjectService) GetProject(ctx context.Context, ownerID string, projectID string) (*model.Project, error) {
	p, err := s.Ledger.Get(ctx, projectID)
	if errors.Is(err, ErrProjectNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if ownerID == "" || p.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	return p, nil
}

func (s *ProjectService) ListProjects(ctx context.Context, ownerID string) ([]*model.Project, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	return s.Ledger.ListByOwner(ctx, ownerID)
}

// SegmentURL returns a time limited download URL for one clip of a completed
// project. The ttl falls back to SignedURLTTL when zero.
func (s *ProjectService) SegmentURL(ctx context.Context, ownerID string, projectID string, rank int, ttl time.Duration) (string, error) {
	p, err := s.GetProject(ctx, ownerID, projectID)
	if err != nil {
		return "", err
	}
	if p.State != model.ProjectStateCompleted {
		return "", fmt.Errorf("%w: %s is %s", ErrProjectNotCompleted, projectID, p.State)
	}
	segment := p.SegmentByRank(rank)
	if segment == nil {
		return "", fmt.Errorf("%w: rank %d", ErrSegmentNotFound, rank)
	}
	if ttl <= 0 {
		ttl = s.SignedURLTTL
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return s.ObjectStore.SignedURL(ctx, segment.FilePath, ttl)
}

// Stats counts the owner's projects per state.
func (s *ProjectService) Stats(ctx context.Context, ownerID string) (*model.ProjectStats, error) {
	projects, err := s.ListProjects(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stats := &model.ProjectStats{Total: len(projects)}
	for _, p := range projects {
		switch p.State {
		case model.ProjectStatePending:
			stats.Pending++
		case model.ProjectStateCompleted:
			stats.Completed++
		case model.ProjectStateFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
