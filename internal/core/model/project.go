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

// Package model holds the data types shared by the pipeline, the ledger and
// the HTTP layer.
package model

import (
	"sort"
	"time"
)

// ProjectState is the lifecycle state of a Project.
type ProjectState string

const (
	ProjectStatePending   ProjectState = "pending"
	ProjectStateCompleted ProjectState = "completed"
	ProjectStateFailed    ProjectState = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s ProjectState) IsTerminal() bool {
	return s == ProjectStateCompleted || s == ProjectStateFailed
}

// Valid reports whether s is one of the known states.
func (s ProjectState) Valid() bool {
	return s == ProjectStatePending || s.IsTerminal()
}

// Segment is a ranked time range selected from the source video. FilePath is a
// local clip path while the pipeline runs and a durable URL once persisted.
type Segment struct {
	Rank     int     `json:"rank"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Reason   string  `json:"reason"`
	FilePath string  `json:"filePath,omitempty"`
}

// Duration is the length of the range in seconds.
func (s *Segment) Duration() float64 {
	return s.End - s.Start
}

// Project is the persisted record for one pipeline run.
type Project struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"owner_id"`
	OriginalVideoURL string       `json:"original_video_url"`
	DetectedSegments []*Segment   `json:"detected_segments"`
	State            ProjectState `json:"state"`
	Name             string       `json:"name,omitempty"`
	CreatedDate      time.Time    `json:"createdDate"`
}

// NewProject returns a pending project with no video and no segments.
func NewProject(id, ownerID, name string, created time.Time) *Project {
	return &Project{
		ID:               id,
		OwnerID:          ownerID,
		DetectedSegments: make([]*Segment, 0),
		State:            ProjectStatePending,
		Name:             name,
		CreatedDate:      created.UTC(),
	}
}

// SegmentByRank returns the segment with the given rank, or nil.
func (p *Project) SegmentByRank(rank int) *Segment {
	for _, s := range p.DetectedSegments {
		if s.Rank == rank {
			return s
		}
	}
	return nil
}

// SortByRank orders segments ascending by rank in place.
func SortByRank(segments []*Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Rank < segments[j].Rank
	})
}

// CloneSegments returns a deep copy so callers can rewrite FilePath without
// touching the original slice.
func CloneSegments(in []*Segment) []*Segment {
	out := make([]*Segment, 0, len(in))
	for _, s := range in {
		c := *s
		out = append(out, &c)
	}
	return out
}
