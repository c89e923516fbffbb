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

package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/services"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-media-shorts/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

func TestMain(m *testing.M) {
	slog.SetDefault(otelslog.NewLogger("project-pipeline-test"))
	os.Exit(m.Run())
}

const oneSegment = `{"segments":[{"rank":1,"start":2,"end":18,"reason":"strong hook in the first seconds"}]}`

const twoSegments = `{"segments":[
	{"rank":2,"start":20,"end":28,"reason":"callback"},
	{"rank":1,"start":2,"end":18,"reason":"hook"}]}`

type harness struct {
	pipeline    *workflow.ProjectPipelineWorkflow
	ledger      services.Ledger
	store       *test.MemoryObjectStore
	transcriber *test.FakeTranscriber
	selector    *test.FakeSelector
	publisher   *recordingPublisher
	tempDir     string
}

type recordingPublisher struct {
	events []*model.ProjectEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *model.ProjectEvent) error {
	p.events = append(p.events, event)
	return nil
}

type harnessOption func(*harness, *workflow.PipelineDependencies)

func withFailingFFmpeg(t *testing.T) harnessOption {
	return func(h *harness, deps *workflow.PipelineDependencies) {
		deps.Cutter = commands.NewFFmpegCutter(test.WriteFakeFFmpeg(t, true), h.tempDir, 1, time.Minute)
	}
}

func withTranscriber(tr commands.Transcriber) harnessOption {
	return func(_ *harness, deps *workflow.PipelineDependencies) {
		deps.Transcriber = tr
	}
}

func withLedger(wrap func(services.Ledger) services.Ledger) harnessOption {
	return func(h *harness, deps *workflow.PipelineDependencies) {
		h.ledger = wrap(h.ledger)
		deps.Ledger = h.ledger
	}
}

func newHarness(t *testing.T, selection string, opts ...harnessOption) *harness {
	t.Helper()
	ledger, err := services.NewSQLiteLedger(context.Background(), filepath.Join(t.TempDir(), "projects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	h := &harness{
		ledger:      ledger,
		store:       test.NewMemoryObjectStore(),
		transcriber: &test.FakeTranscriber{Transcript: "[00:00] welcome back\n[00:02] you will not believe this"},
		selector:    &test.FakeSelector{Response: selection},
		publisher:   &recordingPublisher{},
		tempDir:     t.TempDir(),
	}

	config := cloud.NewConfig()
	config.Pipeline.TempDir = h.tempDir
	config.ApplyDefaults()

	deps := workflow.PipelineDependencies{
		Ledger:      h.ledger,
		Store:       h.store,
		Transcriber: h.transcriber,
		Selector:    h.selector,
		Cutter:      commands.NewFFmpegCutter(test.WriteFakeFFmpeg(t, false), h.tempDir, 1, time.Minute),
		Publisher:   h.publisher,
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	h.pipeline = workflow.NewProjectPipelineWorkflow(config, deps)
	return h
}

func request(id string) *model.ProjectRequest {
	return &model.ProjectRequest{
		ProjectID:     id,
		OwnerID:       "owner-1",
		Name:          "Holiday",
		FileName:      "holiday clip.mp4",
		Video:         []byte("twenty seconds of video"),
		SegmentLength: model.SegmentLength15To30,
	}
}

func (h *harness) project(t *testing.T, id string) *model.Project {
	t.Helper()
	p, err := h.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) assertNoLeftovers(t *testing.T) {
	t.Helper()
	assert.Empty(t, test.ListFiles(t, h.tempDir), "temporary files left behind")
	for _, key := range h.store.Keys() {
		assert.Contains(t, key, "_segment_", "non-clip object left in the store: %s", key)
	}
}

func TestPipelineCompletes(t *testing.T) {
	h := newHarness(t, oneSegment)

	segments, err := h.pipeline.Run(context.Background(), request("p-1"))
	require.NoError(t, err)

	require.Len(t, segments, 1)
	assert.Equal(t, 1, segments[0].Rank)
	assert.Equal(t, 16.0, segments[0].Duration())
	assert.True(t, strings.HasPrefix(segments[0].FilePath, test.MemoryStoreBaseURL+"/magicscuts/owner-1/"))
	assert.True(t, strings.HasSuffix(segments[0].FilePath, "-holiday_clip_segment_1.mp4"))

	p := h.project(t, "p-1")
	assert.Equal(t, model.ProjectStateCompleted, p.State)
	assert.NoError(t, model.ValidateCompleted(p.DetectedSegments))
	assert.Equal(t, segments[0].FilePath, p.DetectedSegments[0].FilePath)
	assert.Contains(t, p.OriginalVideoURL, "-holiday_clip.mp4")

	require.Len(t, h.transcriber.URLs, 1)
	assert.Equal(t, p.OriginalVideoURL, h.transcriber.URLs[0])
	assert.Equal(t, []model.SegmentLengthBucket{model.SegmentLength15To30}, h.selector.Buckets)

	// One write for the original and one for the clip; the original is gone.
	assert.Equal(t, 2, h.store.Writes)
	assert.Contains(t, h.store.Deletes, p.OriginalVideoURL)
	assert.Len(t, h.store.Keys(), 1)
	h.assertNoLeftovers(t)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, model.ProjectStateCompleted, h.publisher.events[0].State)
	assert.Equal(t, 1, h.publisher.events[0].SegmentCount)
}

func TestPipelineOrdersSegmentsByRank(t *testing.T) {
	h := newHarness(t, twoSegments)

	segments, err := h.pipeline.Run(context.Background(), request("p-1"))
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, 1, segments[0].Rank)
	assert.Equal(t, 2, segments[1].Rank)
	assert.NotEqual(t, segments[0].FilePath, segments[1].FilePath)
	h.assertNoLeftovers(t)
}

func TestPipelineTranscriptionFailure(t *testing.T) {
	h := newHarness(t, oneSegment, withTranscriber(&test.FakeTranscriber{Err: test.ErrGatewayDown}))

	segments, err := h.pipeline.Run(context.Background(), request("p-1"))
	assert.Nil(t, segments)
	assert.ErrorIs(t, err, workflow.ErrProjectFailed)
	assert.ErrorIs(t, err, test.ErrGatewayDown)

	p := h.project(t, "p-1")
	assert.Equal(t, model.ProjectStateFailed, p.State)
	assert.Empty(t, p.DetectedSegments)
	assert.NotEmpty(t, p.OriginalVideoURL, "the original was uploaded before the failure")

	assert.Empty(t, h.store.Keys(), "source object must be removed")
	h.assertNoLeftovers(t)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, model.ProjectStateFailed, h.publisher.events[0].State)
	assert.NotEmpty(t, h.publisher.events[0].Error)
}

func TestPipelineMalformedSelection(t *testing.T) {
	h := newHarness(t, `{"segments":[{"rank":1,"start":5,"end":3,"reason":"backwards"}]}`)

	_, err := h.pipeline.Run(context.Background(), request("p-1"))
	assert.ErrorIs(t, err, workflow.ErrProjectFailed)
	var parseErr *model.ParseError
	assert.ErrorAs(t, err, &parseErr)

	p := h.project(t, "p-1")
	assert.Equal(t, model.ProjectStateFailed, p.State)
	assert.Empty(t, p.DetectedSegments)
	h.assertNoLeftovers(t)
	assert.Empty(t, h.store.Keys())
}

func TestPipelineCutterFailure(t *testing.T) {
	h := newHarness(t, twoSegments, withFailingFFmpeg(t))

	_, err := h.pipeline.Run(context.Background(), request("p-1"))
	assert.ErrorIs(t, err, workflow.ErrProjectFailed)
	assert.Contains(t, err.Error(), "ffmpeg")

	assert.Equal(t, model.ProjectStateFailed, h.project(t, "p-1").State)
	h.assertNoLeftovers(t)
	assert.Empty(t, h.store.Keys())
}

func TestPipelineClipUploadFailure(t *testing.T) {
	h := newHarness(t, twoSegments)
	h.store.FailUploadOn = "_segment_2"

	_, err := h.pipeline.Run(context.Background(), request("p-1"))
	assert.ErrorIs(t, err, workflow.ErrProjectFailed)

	p := h.project(t, "p-1")
	assert.Equal(t, model.ProjectStateFailed, p.State)
	assert.Empty(t, p.DetectedSegments)
	assert.Empty(t, h.store.Keys(), "clip 1 is rolled back and the original deleted")
	h.assertNoLeftovers(t)
}

type rejectCompleted struct {
	services.Ledger
}

func (l rejectCompleted) Update(ctx context.Context, id string, update services.ProjectUpdate) error {
	if update.State == model.ProjectStateCompleted {
		return errors.New("ledger write timed out")
	}
	return l.Ledger.Update(ctx, id, update)
}

func TestPipelineCompletedWriteFailure(t *testing.T) {
	h := newHarness(t, oneSegment, withLedger(func(l services.Ledger) services.Ledger { return rejectCompleted{l} }))

	_, err := h.pipeline.Run(context.Background(), request("p-1"))
	assert.ErrorIs(t, err, workflow.ErrProjectFailed)
	assert.Contains(t, err.Error(), "ledger write timed out")

	p := h.project(t, "p-1")
	assert.Equal(t, model.ProjectStateFailed, p.State)
	assert.Empty(t, p.DetectedSegments)
	assert.Empty(t, h.store.Keys())
	h.assertNoLeftovers(t)
}

type panickingTranscriber struct{}

func (panickingTranscriber) Transcribe(context.Context, string) (string, error) {
	panic("nil model handle")
}

func TestPipelineRecoversFromPanic(t *testing.T) {
	h := newHarness(t, oneSegment, withTranscriber(panickingTranscriber{}))

	_, err := h.pipeline.Run(context.Background(), request("p-1"))
	assert.ErrorIs(t, err, workflow.ErrProjectFailed)
	assert.Contains(t, err.Error(), "nil model handle")
	assert.Equal(t, model.ProjectStateFailed, h.project(t, "p-1").State)
	h.assertNoLeftovers(t)
	assert.Empty(t, h.store.Keys())
}

func TestPipelineCallerCancellationDoesNotAbortStartedSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &cancelDuringTranscribe{cancel: cancel, delay: 100 * time.Millisecond, transcript: "[00:00] still here"}
	h := newHarness(t, oneSegment, withTranscriber(slow))

	segments, err := h.pipeline.Run(ctx, request("p-1"))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.NoError(t, slow.stepErr, "the transcription step saw the caller's cancellation")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	p := h.project(t, "p-1")
	assert.Equal(t, model.ProjectStateCompleted, p.State)
	assert.NoError(t, model.ValidateCompleted(p.DetectedSegments))
	h.assertNoLeftovers(t)
}

// cancelDuringTranscribe cancels the caller's context once the step has
// started, then works for delay while honouring its own context.
type cancelDuringTranscribe struct {
	cancel     context.CancelFunc
	delay      time.Duration
	transcript string
	stepErr    error
}

func (c *cancelDuringTranscribe) Transcribe(ctx context.Context, _ string) (string, error) {
	c.cancel()
	select {
	case <-ctx.Done():
		c.stepErr = ctx.Err()
		return "", ctx.Err()
	case <-time.After(c.delay):
		return c.transcript, nil
	}
}

func TestPipelineRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, oneSegment)

	cases := map[string]func(*model.ProjectRequest){
		"empty video":    func(r *model.ProjectRequest) { r.Video = nil },
		"missing owner":  func(r *model.ProjectRequest) { r.OwnerID = " " },
		"missing id":     func(r *model.ProjectRequest) { r.ProjectID = "" },
		"missing file":   func(r *model.ProjectRequest) { r.FileName = "" },
		"unknown bucket": func(r *model.ProjectRequest) { r.SegmentLength = "15-30s" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := request("p-invalid")
			mutate(r)
			_, err := h.pipeline.Run(context.Background(), r)
			assert.ErrorIs(t, err, workflow.ErrInvalidInput)
			assert.NotErrorIs(t, err, workflow.ErrProjectFailed)
		})
	}

	_, err := h.ledger.Get(context.Background(), "p-invalid")
	assert.ErrorIs(t, err, services.ErrProjectNotFound)
	assert.Zero(t, h.store.Writes)
	assert.Empty(t, h.transcriber.URLs)
}

func TestPipelineRejectsDuplicateProject(t *testing.T) {
	h := newHarness(t, oneSegment)
	_, err := h.pipeline.Run(context.Background(), request("p-1"))
	require.NoError(t, err)

	_, err = h.pipeline.Run(context.Background(), request("p-1"))
	assert.ErrorIs(t, err, workflow.ErrInvalidInput)
	assert.ErrorIs(t, err, services.ErrProjectExists)
	assert.Equal(t, model.ProjectStateCompleted, h.project(t, "p-1").State)
}
