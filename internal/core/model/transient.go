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

package model

import (
	"fmt"
	"time"
)

// SegmentLengthBucket is the requested clip length range. It is forwarded
// verbatim into the selection prompt.
type SegmentLengthBucket string

const (
	SegmentLength15To30   SegmentLengthBucket = "15-30seconds"
	SegmentLength30To60   SegmentLengthBucket = "30-60seconds"
	SegmentLength60To90   SegmentLengthBucket = "60-90seconds"
	SegmentLength90To120  SegmentLengthBucket = "90-120seconds"
	SegmentLength120To180 SegmentLengthBucket = "120-180seconds"
)

// SegmentLengthBuckets lists the accepted buckets, shortest first.
func SegmentLengthBuckets() []SegmentLengthBucket {
	return []SegmentLengthBucket{
		SegmentLength15To30,
		SegmentLength30To60,
		SegmentLength60To90,
		SegmentLength90To120,
		SegmentLength120To180,
	}
}

// ParseSegmentLengthBucket accepts only the enumerated values.
func ParseSegmentLengthBucket(in string) (SegmentLengthBucket, error) {
	for _, b := range SegmentLengthBuckets() {
		if string(b) == in {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown segment length %q", in)
}

// SegmentSelection is the structured response expected from the language model.
type SegmentSelection struct {
	Segments []*Segment `json:"segments"`
}

// selectionItem mirrors Segment without FilePath so that a model inventing
// file paths is rejected by the strict decoder.
type selectionItem struct {
	Rank   *int     `json:"rank"`
	Start  *float64 `json:"start"`
	End    *float64 `json:"end"`
	Reason *string  `json:"reason"`
}

type selectionEnvelope struct {
	Segments []*selectionItem `json:"segments"`
}

// ProjectEvent is published when a project reaches a terminal state.
type ProjectEvent struct {
	ProjectID    string       `json:"project_id"`
	OwnerID      string       `json:"owner_id"`
	State        ProjectState `json:"state"`
	SegmentCount int          `json:"segment_count"`
	Error        string       `json:"error,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// ProjectRequest is the input of one pipeline run.
type ProjectRequest struct {
	ProjectID     string
	OwnerID       string
	Name          string
	FileName      string
	Video         []byte
	SegmentLength SegmentLengthBucket
}

// ProjectStats counts an owner's projects per state.
type ProjectStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
