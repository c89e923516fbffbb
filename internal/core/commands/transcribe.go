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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
)

// ErrEmptyTranscript is recorded when the transcriber returns only whitespace.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Transcriber turns the media at a durable URL into a timestamped transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

// Transcribe calls the Transcriber once with the URL found in CtxIn.
type Transcribe struct {
	cor.BaseCommand
	transcriber Transcriber
	timeout     time.Duration
}

func NewTranscribe(name string, transcriber Transcriber, timeout time.Duration) *Transcribe {
	return &Transcribe{BaseCommand: *cor.NewBaseCommand(name), transcriber: transcriber, timeout: timeout}
}

func (t *Transcribe) Execute(chCtx cor.Context) {
	mediaURL := chCtx.Get(t.GetInputParam()).(string)

	ctx, cancel := context.WithTimeout(chCtx.GetContext(), t.timeout)
	defer cancel()
	transcript, err := t.transcriber.Transcribe(ctx, mediaURL)
	if err == nil && strings.TrimSpace(transcript) == "" {
		err = ErrEmptyTranscript
	}
	if err != nil {
		t.GetErrorCounter().Add(chCtx.GetContext(), 1)
		chCtx.AddError(t.GetName(), fmt.Errorf("transcription failed: %w", err))
		return
	}

	t.GetSuccessCounter().Add(chCtx.GetContext(), 1)
	chCtx.Add(GetTranscriptParameterName(), transcript)
	chCtx.Add(t.GetOutputParam(), transcript)
}
