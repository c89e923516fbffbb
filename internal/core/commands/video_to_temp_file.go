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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
)

// ErrEmptyVideo is recorded when the request carries no video bytes.
var ErrEmptyVideo = errors.New("video payload is empty")

// VideoToTempFile writes the uploaded video bytes to a tracked local file.
// The file is the only input of every later local step.
type VideoToTempFile struct {
	cor.BaseCommand
	tempDir string // Directory for the file; the OS default when empty.
}

func NewVideoToTempFile(name string, tempDir string) *VideoToTempFile {
	return &VideoToTempFile{BaseCommand: *cor.NewBaseCommand(name), tempDir: tempDir}
}

func (c *VideoToTempFile) Execute(context cor.Context) {
	video, _ := context.Get(c.GetInputParam()).([]byte)
	if len(video) == 0 {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), ErrEmptyVideo)
		return
	}
	fileName, _ := context.Get(GetFileNameParameterName()).(string)

	tempFile, err := os.CreateTemp(c.tempDir, "source-*"+filepath.Ext(fileName))
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("could not create temp file: %w", err))
		return
	}
	// Tracked before writing so a partial file is still removed.
	context.AddTempFile(tempFile.Name())

	written, err := tempFile.Write(video)
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to write %s after %d bytes: %w", tempFile.Name(), written, err))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.DebugContext(context.GetContext(), "wrote source video", "path", tempFile.Name(), "bytes", written)
	context.Add(GetSourcePathParameterName(), tempFile.Name())
	context.Add(c.GetOutputParam(), tempFile.Name())
}
