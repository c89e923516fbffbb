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

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
)

// SegmentSelector picks ranked time ranges from a transcript. Implementations
// return segments sorted by rank or an error; never a partial list.
type SegmentSelector interface {
	SelectSegments(ctx context.Context, transcript string, bucket model.SegmentLengthBucket) ([]*model.Segment, error)
}

// SegmentSelection asks the selector for segments of the requested length.
type SegmentSelection struct {
	cor.BaseCommand
	selector SegmentSelector
	timeout  time.Duration
}

func NewSegmentSelection(name string, selector SegmentSelector, timeout time.Duration) *SegmentSelection {
	return &SegmentSelection{BaseCommand: *cor.NewBaseCommand(name), selector: selector, timeout: timeout}
}

func (s *SegmentSelection) IsExecutable(chCtx cor.Context) bool {
	_, ok := chCtx.Get(GetSegmentLengthParameterName()).(model.SegmentLengthBucket)
	return s.BaseCommand.IsExecutable(chCtx) && ok
}

func (s *SegmentSelection) Execute(chCtx cor.Context) {
	transcript := chCtx.Get(s.GetInputParam()).(string)
	bucket := chCtx.Get(GetSegmentLengthParameterName()).(model.SegmentLengthBucket)

	ctx, cancel := context.WithTimeout(chCtx.GetContext(), s.timeout)
	defer cancel()
	segments, err := s.selector.SelectSegments(ctx, transcript, bucket)
	if err == nil && len(segments) == 0 {
		err = fmt.Errorf("selector returned no segments")
	}
	if err != nil {
		s.GetErrorCounter().Add(chCtx.GetContext(), 1)
		chCtx.AddError(s.GetName(), fmt.Errorf("segment selection failed: %w", err))
		return
	}

	ordered := model.CloneSegments(segments)
	model.SortByRank(ordered)
	s.GetSuccessCounter().Add(chCtx.GetContext(), 1)
	slog.InfoContext(chCtx.GetContext(), "selected segments", "count", len(ordered), "bucket", string(bucket))
	chCtx.Add(s.GetOutputParam(), ordered)
}
