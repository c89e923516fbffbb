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

// Package workflow assembles commands into the project pipeline and runs the
// background monitor that reports projects stuck in pending.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrInvalidInput rejects a request before any external call is made.
	ErrInvalidInput = errors.New("invalid project request")
	// ErrProjectFailed is the single failure kind returned once a project has
	// been created. The wrapped error carries the detail.
	ErrProjectFailed = errors.New("project pipeline failed")
)

// PipelineDependencies are the collaborators of a ProjectPipelineWorkflow.
// Publisher may be nil.
type PipelineDependencies struct {
	Ledger      services.Ledger
	Store       cloud.ObjectStore
	Transcriber commands.Transcriber
	Selector    commands.SegmentSelector
	Cutter      commands.SegmentCutter
	Publisher   cloud.EventPublisher
}

// ProjectPipelineWorkflow turns one uploaded video into ranked clips. The
// commands run as a chain; Run owns the ledger writes around the chain, so
// every created project ends completed or failed.
type ProjectPipelineWorkflow struct {
	cor.BaseCommand
	deps      PipelineDependencies
	keyPrefix string
	tempDir   string
	timeouts  cloud.Timeouts
	chain     cor.Chain
	now       func() time.Time
}

func (w *ProjectPipelineWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *ProjectPipelineWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	// []byte -> local source path
	out.AddCommand(commands.NewVideoToTempFile("video-to-temp-file", w.tempDir))

	// local source path -> original video URL
	out.AddCommand(commands.NewOriginalVideoUpload("original-video-upload", w.deps.Store, w.keyPrefix, w.timeouts.Store))

	// original video URL -> transcript
	out.AddCommand(commands.NewTranscribe("transcribe", w.deps.Transcriber, w.timeouts.Transcription))

	// transcript -> ranked segments
	out.AddCommand(commands.NewSegmentSelection("segment-selection", w.deps.Selector, w.timeouts.Selection))

	// segments -> local clips
	out.AddCommand(commands.NewSegmentCut("segment-cut", w.deps.Cutter))

	// local clips -> segments with durable URLs
	out.AddCommand(commands.NewClipUpload("clip-upload", w.deps.Store, w.keyPrefix, w.timeouts.Store))

	w.chain = out
}

// NewProjectPipelineWorkflow wires the chain from config.Pipeline and
// config.Storage.
func NewProjectPipelineWorkflow(config *cloud.Config, deps PipelineDependencies) *ProjectPipelineWorkflow {
	if deps.Publisher == nil {
		deps.Publisher = cloud.NoopEventPublisher{}
	}
	keyPrefix := config.Storage.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = cloud.DefaultKeyPrefix
	}
	out := &ProjectPipelineWorkflow{
		BaseCommand: *cor.NewBaseCommand("project-pipeline"),
		deps:        deps,
		keyPrefix:   keyPrefix,
		tempDir:     config.Pipeline.TempDir,
		timeouts:    config.Pipeline.Timeouts(),
		now:         time.Now,
	}
	out.initializeChain()
	return out
}

// NewProjectPipeline builds the production pipeline: Gemini transcription and
// selection from the configured agent models, and an ffmpeg cutter.
func NewProjectPipeline(config *cloud.Config, serviceClients *cloud.ServiceClients, ledger services.Ledger) (*ProjectPipelineWorkflow, error) {
	transcriptionModel, err := serviceClients.AgentModel(config.Pipeline.TranscriptionModel)
	if err != nil {
		return nil, err
	}
	selectionModel, err := serviceClients.AgentModel(config.Pipeline.SelectionModel)
	if err != nil {
		return nil, err
	}
	transcriber, err := cloud.NewGeminiTranscriber(transcriptionModel, config.PromptTemplates.TranscriptionPrompt)
	if err != nil {
		return nil, err
	}
	selector, err := cloud.NewGeminiSegmentSelector(selectionModel, config.PromptTemplates.SelectionPrompt)
	if err != nil {
		return nil, err
	}
	timeouts := config.Pipeline.Timeouts()
	cutter := commands.NewFFmpegCutter(config.Pipeline.FFmpegPath, config.Pipeline.TempDir, config.Pipeline.CutConcurrency, timeouts.Cut)

	return NewProjectPipelineWorkflow(config, PipelineDependencies{
		Ledger:      ledger,
		Store:       serviceClients.ObjectStore,
		Transcriber: transcriber,
		Selector:    selector,
		Cutter:      cutter,
		Publisher:   serviceClients.EventPublisher,
	}), nil
}

// Run executes the pipeline for request and returns the finalized segments.
// A validation problem returns ErrInvalidInput and touches nothing. Any later
// failure marks the project failed, cleans up and returns ErrProjectFailed.
func (w *ProjectPipelineWorkflow) Run(ctx context.Context, request *model.ProjectRequest) ([]*model.Segment, error) {
	if err := validateRequest(request); err != nil {
		return nil, err
	}

	ctx, span := w.GetTracer().Start(ctx, "project-pipeline-run")
	defer span.End()
	span.SetAttributes(
		attribute.String("project_id", request.ProjectID),
		attribute.String("segment_length", string(request.SegmentLength)),
	)
	logger := slog.With("project_id", request.ProjectID, "owner_id", request.OwnerID)

	if err := w.createPending(ctx, request); err != nil {
		span.SetStatus(codes.Error, "create failed")
		if errors.Is(err, services.ErrProjectExists) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrProjectFailed, err)
	}
	logger.InfoContext(ctx, "project created", "state", model.ProjectStatePending)

	// A started step runs to completion or failure under its own timeout;
	// the caller going away does not abort it.
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.WithoutCancel(ctx))
	chCtx.Add(cor.CtxIn, request.Video)
	chCtx.Add(commands.GetProjectIDParameterName(), request.ProjectID)
	chCtx.Add(commands.GetOwnerIDParameterName(), request.OwnerID)
	chCtx.Add(commands.GetFileNameParameterName(), request.FileName)
	chCtx.Add(commands.GetSegmentLengthParameterName(), request.SegmentLength)

	terminalCtx := chCtx.GetContext()
	defer func() {
		if err := chCtx.Close(terminalCtx); err != nil {
			logger.WarnContext(ctx, "cleanup incomplete", "error", err)
		}
	}()

	runErr := w.execute(chCtx)
	segments, _ := chCtx.Get(commands.GetSegmentsParameterName()).([]*model.Segment)
	originalURL, _ := chCtx.Get(commands.GetOriginalVideoURLParameterName()).(string)

	if runErr == nil {
		err := w.updateLedger(terminalCtx, request.ProjectID, services.ProjectUpdate{
			State:            model.ProjectStateCompleted,
			Segments:         segments,
			OriginalVideoURL: originalURL,
		})
		if err != nil {
			runErr = fmt.Errorf("failed to record completed project: %w", err)
			w.deleteClips(terminalCtx, segments)
		}
	}

	if runErr != nil {
		logger.ErrorContext(ctx, "project failed", "error", runErr)
		err := w.updateLedger(terminalCtx, request.ProjectID, services.ProjectUpdate{
			State:            model.ProjectStateFailed,
			Segments:         []*model.Segment{},
			OriginalVideoURL: originalURL,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to record failed project", "error", err)
			runErr = errors.Join(runErr, err)
		}
		w.GetErrorCounter().Add(ctx, 1)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "project failed")
		w.publish(terminalCtx, request, model.ProjectStateFailed, 0, runErr)
		return nil, fmt.Errorf("%w: %w", ErrProjectFailed, runErr)
	}

	w.GetSuccessCounter().Add(ctx, 1)
	span.SetStatus(codes.Ok, "project completed")
	logger.InfoContext(ctx, "project completed", "segments", len(segments))
	w.publish(terminalCtx, request, model.ProjectStateCompleted, len(segments), nil)
	return segments, nil
}

// execute runs the chain and converts a panic in any command into an error so
// the project still reaches a terminal state.
func (w *ProjectPipelineWorkflow) execute(chCtx cor.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panicked: %v", r)
		}
	}()
	w.Execute(chCtx)
	if err := chCtx.Err(); err != nil {
		return err
	}
	if _, ok := chCtx.Get(commands.GetSegmentsParameterName()).([]*model.Segment); !ok {
		return errors.New("pipeline finished without segments")
	}
	return nil
}

func (w *ProjectPipelineWorkflow) createPending(ctx context.Context, request *model.ProjectRequest) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeouts.Ledger)
	defer cancel()
	return w.deps.Ledger.Create(ctx, request.ProjectID, request.OwnerID, request.Name)
}

func (w *ProjectPipelineWorkflow) updateLedger(ctx context.Context, id string, update services.ProjectUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeouts.Ledger)
	defer cancel()
	return w.deps.Ledger.Update(ctx, id, update)
}

func (w *ProjectPipelineWorkflow) deleteClips(ctx context.Context, segments []*model.Segment) {
	ctx, cancel := context.WithTimeout(ctx, w.timeouts.Store)
	defer cancel()
	for _, s := range segments {
		if err := w.deps.Store.Delete(ctx, s.FilePath); err != nil {
			slog.WarnContext(ctx, "failed to delete clip", "url", s.FilePath, "error", err)
		}
	}
}

func (w *ProjectPipelineWorkflow) publish(ctx context.Context, request *model.ProjectRequest, state model.ProjectState, count int, cause error) {
	event := &model.ProjectEvent{
		ProjectID:    request.ProjectID,
		OwnerID:      request.OwnerID,
		State:        state,
		SegmentCount: count,
		OccurredAt:   w.now().UTC(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeouts.Ledger)
	defer cancel()
	if err := w.deps.Publisher.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to publish project event", "project_id", request.ProjectID, "error", err)
	}
}

func validateRequest(request *model.ProjectRequest) error {
	if request == nil {
		return fmt.Errorf("%w: missing request", ErrInvalidInput)
	}
	var problems []string
	if strings.TrimSpace(request.ProjectID) == "" {
		problems = append(problems, "project id is required")
	}
	if strings.TrimSpace(request.OwnerID) == "" {
		problems = append(problems, "owner id is required")
	}
	if strings.TrimSpace(request.FileName) == "" {
		problems = append(problems, "file name is required")
	}
	if len(request.Video) == 0 {
		problems = append(problems, "video is empty")
	}
	if _, err := model.ParseSegmentLengthBucket(string(request.SegmentLength)); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
