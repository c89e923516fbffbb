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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/sync/errgroup"
)

const (
	// VerticalCropFilter center-crops to 9:16 at full source height, then scales
	// to 1080x1920.
	VerticalCropFilter = "crop=ih*9/16:ih:(iw-ih*9/16)/2:0,scale=1080:1920"
	ClipFilePrefix     = "segment_"

	stderrTailBytes = 2048
)

// ErrNoSegments is returned when the cutter is asked to cut nothing.
var ErrNoSegments = errors.New("no segments to cut")

// SegmentCutter produces one local clip per segment. The returned segments are
// copies sorted by rank whose FilePath is the clip path.
type SegmentCutter interface {
	Cut(ctx context.Context, sourcePath string, segments []*model.Segment) ([]*model.Segment, error)
}

// FFmpegCutter runs one ffmpeg process per segment. At most concurrency
// processes run at once; with the default of 1 clips are cut strictly one
// after another.
type FFmpegCutter struct {
	commandPath string
	tempDir     string
	concurrency int
	timeout     time.Duration // Per clip.
}

func NewFFmpegCutter(commandPath string, tempDir string, concurrency int, timeout time.Duration) *FFmpegCutter {
	if concurrency < 1 {
		concurrency = 1
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpegCutter{commandPath: commandPath, tempDir: tempDir, concurrency: concurrency, timeout: timeout}
}

// Args returns the ffmpeg argument list that cuts segment out of source into
// output, for example:
//
//	-ss 2.000 -t 16.000 -i source.mp4 -c:a copy -vf crop=... output.mp4 -y
func (c *FFmpegCutter) Args(source string, output string, segment *model.Segment) []string {
	return ffmpeg.Input(source, ffmpeg.KwArgs{
		"ss": formatSeconds(segment.Start),
		"t":  formatSeconds(segment.Duration()),
	}).Output(output, ffmpeg.KwArgs{
		"vf":  VerticalCropFilter,
		"c:a": "copy",
	}).OverWriteOutput().GetArgs()
}

// Cut sorts segments by rank and cuts each into a unique file in the temp
// directory. The first failure stops the remaining segments, removes every
// clip already produced and is returned.
func (c *FFmpegCutter) Cut(ctx context.Context, sourcePath string, segments []*model.Segment) ([]*model.Segment, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	ordered := model.CloneSegments(segments)
	model.SortByRank(ordered)

	clips := make([]*model.Segment, len(ordered))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for i, segment := range ordered {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			output := filepath.Join(c.tempDir, fmt.Sprintf("%s%d_%s.mp4", ClipFilePrefix, segment.Rank, uuid.NewString()))
			if err := c.cutOne(groupCtx, sourcePath, output, segment); err != nil {
				removeFile(output)
				return fmt.Errorf("segment rank %d: %w", segment.Rank, err)
			}
			segment.FilePath = output
			clips[i] = segment
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		for _, clip := range clips {
			if clip != nil {
				removeFile(clip.FilePath)
			}
		}
		return nil, err
	}
	return clips, nil
}

func (c *FFmpegCutter) cutOne(ctx context.Context, source string, output string, segment *model.Segment) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := c.Args(source, output, segment)
	cmd := exec.CommandContext(ctx, c.commandPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error running ffmpeg: %w: %s", err, tail(stderr.String(), stderrTailBytes))
	}
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output at %s", output)
	}
	slog.DebugContext(ctx, "cut segment", "rank", segment.Rank, "output", output, "elapsed", time.Since(start))
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove file", "path", path, "error", err)
	}
}

// SegmentCut runs the cutter over the segments in CtxIn against the local
// source video. Produced clips are tracked as temp files.
type SegmentCut struct {
	cor.BaseCommand
	cutter SegmentCutter
}

func NewSegmentCut(name string, cutter SegmentCutter) *SegmentCut {
	return &SegmentCut{BaseCommand: *cor.NewBaseCommand(name), cutter: cutter}
}

func (c *SegmentCut) IsExecutable(context cor.Context) bool {
	_, ok := context.Get(GetSourcePathParameterName()).(string)
	return c.BaseCommand.IsExecutable(context) && ok
}

func (c *SegmentCut) Execute(context cor.Context) {
	segments := context.Get(c.GetInputParam()).([]*model.Segment)
	source := context.Get(GetSourcePathParameterName()).(string)

	clips, err := c.cutter.Cut(context.GetContext(), source, segments)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("cutting failed: %w", err))
		return
	}
	for _, clip := range clips {
		context.AddTempFile(clip.FilePath)
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), clips)
}
