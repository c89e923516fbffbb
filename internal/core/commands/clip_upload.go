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
	"path/filepath"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
)

// ClipUpload uploads every clip in CtxIn, one at a time, and replaces each
// local path with the durable URL. A local clip is removed as soon as its
// upload succeeds. If any upload fails the whole phase fails and the clips
// already uploaded by this command are deleted again.
type ClipUpload struct {
	cor.BaseCommand
	store     cloud.ObjectStore
	keyPrefix string
	timeout   time.Duration
}

func NewClipUpload(name string, store cloud.ObjectStore, keyPrefix string, timeout time.Duration) *ClipUpload {
	return &ClipUpload{
		BaseCommand: *cor.NewBaseCommand(name),
		store:       store,
		keyPrefix:   keyPrefix,
		timeout:     timeout,
	}
}

func (c *ClipUpload) Execute(chCtx cor.Context) {
	clips := chCtx.Get(c.GetInputParam()).([]*model.Segment)
	ownerID, _ := chCtx.Get(GetOwnerIDParameterName()).(string)
	fileName, _ := chCtx.Get(GetFileNameParameterName()).(string)
	stem := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))

	finalized := model.CloneSegments(clips)
	model.SortByRank(finalized)
	uploaded := make([]string, 0, len(finalized))

	for _, segment := range finalized {
		key := cloud.NewObjectKey(c.keyPrefix, ownerID, fmt.Sprintf("%s_segment_%d.mp4", stem, segment.Rank))
		url, err := c.uploadClip(chCtx.GetContext(), segment.FilePath, key)
		if err != nil {
			c.GetErrorCounter().Add(chCtx.GetContext(), 1)
			chCtx.AddError(c.GetName(), fmt.Errorf("failed to upload clip rank %d: %w", segment.Rank, err))
			c.rollback(chCtx.GetContext(), uploaded)
			return
		}
		removeFile(segment.FilePath)
		segment.FilePath = url
		uploaded = append(uploaded, url)
	}

	c.GetSuccessCounter().Add(chCtx.GetContext(), 1)
	chCtx.Add(GetSegmentsParameterName(), finalized)
	chCtx.Add(c.GetOutputParam(), finalized)
}

func (c *ClipUpload) uploadClip(ctx context.Context, path string, key string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Upload(ctx, file, key)
}

func (c *ClipUpload) rollback(ctx context.Context, urls []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	for _, url := range urls {
		if err := c.store.Delete(ctx, url); err != nil {
			slog.WarnContext(ctx, "failed to delete uploaded clip", "url", url, "error", err)
		}
	}
}
