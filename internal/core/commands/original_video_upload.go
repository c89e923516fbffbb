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
	"os"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
)

// OriginalVideoUpload stores the local source video under
// `<prefix>/<owner>/<uuid>-<fileName>` and registers a cleanup that deletes the
// remote copy when the run ends, whatever its outcome. Only derived clips are
// kept long term.
type OriginalVideoUpload struct {
	cor.BaseCommand
	store     cloud.ObjectStore
	keyPrefix string
	timeout   time.Duration
}

func NewOriginalVideoUpload(name string, store cloud.ObjectStore, keyPrefix string, timeout time.Duration) *OriginalVideoUpload {
	return &OriginalVideoUpload{
		BaseCommand: *cor.NewBaseCommand(name),
		store:       store,
		keyPrefix:   keyPrefix,
		timeout:     timeout,
	}
}

func (c *OriginalVideoUpload) Execute(chCtx cor.Context) {
	path := chCtx.Get(c.GetInputParam()).(string)
	ownerID, _ := chCtx.Get(GetOwnerIDParameterName()).(string)
	fileName, _ := chCtx.Get(GetFileNameParameterName()).(string)
	key := cloud.NewObjectKey(c.keyPrefix, ownerID, fileName)

	file, err := os.Open(path)
	if err != nil {
		c.GetErrorCounter().Add(chCtx.GetContext(), 1)
		chCtx.AddError(c.GetName(), fmt.Errorf("failed to open %s: %w", path, err))
		return
	}
	defer func() { _ = file.Close() }()

	ctx, cancel := context.WithTimeout(chCtx.GetContext(), c.timeout)
	defer cancel()
	url, err := c.store.Upload(ctx, file, key)
	if err != nil {
		c.GetErrorCounter().Add(chCtx.GetContext(), 1)
		chCtx.AddError(c.GetName(), fmt.Errorf("failed to upload original video: %w", err))
		return
	}

	store, timeout := c.store, c.timeout
	chCtx.AddCleanup(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := store.Delete(ctx, url); err != nil {
			return fmt.Errorf("failed to delete original video %s: %w", url, err)
		}
		return nil
	})

	c.GetSuccessCounter().Add(chCtx.GetContext(), 1)
	slog.InfoContext(chCtx.GetContext(), "uploaded original video", "url", url)
	chCtx.Add(GetOriginalVideoURLParameterName(), url)
	chCtx.Add(c.GetOutputParam(), url)
}
