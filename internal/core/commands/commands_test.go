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

package commands_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	test "github.com/jaycherian/gcp-go-media-shorts/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(input interface{}) cor.Context {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, input)
	chCtx.Add(commands.GetOwnerIDParameterName(), "owner-1")
	chCtx.Add(commands.GetFileNameParameterName(), "My Clip.mov")
	return chCtx
}

func TestVideoToTempFile(t *testing.T) {
	dir := t.TempDir()
	cmd := commands.NewVideoToTempFile("video-to-temp-file", dir)

	chCtx := newContext([]byte("bytes"))
	cmd.Execute(chCtx)
	require.NoError(t, chCtx.Err())

	path := chCtx.Get(cor.CtxOut).(string)
	assert.Equal(t, path, chCtx.Get(commands.GetSourcePathParameterName()))
	assert.Equal(t, ".mov", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))
	assert.Equal(t, []string{path}, chCtx.GetTempFiles())

	empty := newContext([]byte{})
	cmd.Execute(empty)
	assert.ErrorIs(t, empty.Err(), commands.ErrEmptyVideo)
}

func TestOriginalVideoUploadRegistersRemoteCleanup(t *testing.T) {
	store := test.NewMemoryObjectStore()
	source := filepath.Join(t.TempDir(), "source.mov")
	require.NoError(t, os.WriteFile(source, []byte("video"), 0o600))

	cmd := commands.NewOriginalVideoUpload("original-video-upload", store, "magicscuts", time.Minute)
	chCtx := newContext(source)
	cmd.Execute(chCtx)
	require.NoError(t, chCtx.Err())

	url := chCtx.Get(commands.GetOriginalVideoURLParameterName()).(string)
	assert.True(t, strings.HasPrefix(url, test.MemoryStoreBaseURL+"/magicscuts/owner-1/"))
	assert.True(t, strings.HasSuffix(url, "-My_Clip.mov"))
	assert.Len(t, store.Keys(), 1)

	require.NoError(t, chCtx.Close(context.Background()))
	assert.Empty(t, store.Keys())
	assert.Equal(t, []string{url}, store.Deletes)
}

func TestTranscribeRejectsBlankTranscript(t *testing.T) {
	cmd := commands.NewTranscribe("transcribe", &test.FakeTranscriber{Transcript: "  \n"}, time.Minute)
	chCtx := newContext("https://objects.test/v.mp4")
	cmd.Execute(chCtx)
	assert.ErrorIs(t, chCtx.Err(), commands.ErrEmptyTranscript)
}

func TestSegmentSelectionNeedsBucket(t *testing.T) {
	selector := &test.FakeSelector{Response: `{"segments":[{"rank":1,"start":0,"end":5,"reason":"r"}]}`}
	cmd := commands.NewSegmentSelection("segment-selection", selector, time.Minute)

	chCtx := newContext("transcript")
	assert.False(t, cmd.IsExecutable(chCtx))

	chCtx.Add(commands.GetSegmentLengthParameterName(), model.SegmentLength30To60)
	require.True(t, cmd.IsExecutable(chCtx))
	cmd.Execute(chCtx)
	require.NoError(t, chCtx.Err())

	segments := chCtx.Get(cor.CtxOut).([]*model.Segment)
	require.Len(t, segments, 1)
	assert.Equal(t, []model.SegmentLengthBucket{model.SegmentLength30To60}, selector.Buckets)
}

func TestClipUploadReplacesPathsAndRemovesLocalClips(t *testing.T) {
	dir := t.TempDir()
	store := test.NewMemoryObjectStore()
	var clips []*model.Segment
	for rank := 2; rank >= 1; rank-- {
		path := filepath.Join(dir, "segment_"+string(rune('0'+rank))+".mp4")
		require.NoError(t, os.WriteFile(path, []byte("clip"), 0o600))
		clips = append(clips, &model.Segment{Rank: rank, Start: 0, End: 5, Reason: "r", FilePath: path})
	}

	cmd := commands.NewClipUpload("clip-upload", store, "magicscuts", time.Minute)
	chCtx := newContext(clips)
	cmd.Execute(chCtx)
	require.NoError(t, chCtx.Err())

	finalized := chCtx.Get(commands.GetSegmentsParameterName()).([]*model.Segment)
	require.Len(t, finalized, 2)
	assert.Equal(t, 1, finalized[0].Rank)
	assert.True(t, strings.HasSuffix(finalized[0].FilePath, "-My_Clip_segment_1.mp4"))
	assert.True(t, strings.HasSuffix(finalized[1].FilePath, "-My_Clip_segment_2.mp4"))
	assert.NoError(t, model.ValidateCompleted(finalized))
	assert.Empty(t, test.ListFiles(t, dir))
	assert.Equal(t, 2, store.Writes)
}

func TestClipUploadFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	store := test.NewMemoryObjectStore()
	store.FailUploadOn = "_segment_2"
	var clips []*model.Segment
	for _, rank := range []int{1, 2} {
		path := filepath.Join(dir, "segment_"+string(rune('0'+rank))+".mp4")
		require.NoError(t, os.WriteFile(path, []byte("clip"), 0o600))
		clips = append(clips, &model.Segment{Rank: rank, Start: 0, End: 5, Reason: "r", FilePath: path})
	}

	cmd := commands.NewClipUpload("clip-upload", store, "magicscuts", time.Minute)
	chCtx := newContext(clips)
	cmd.Execute(chCtx)

	assert.Error(t, chCtx.Err())
	assert.Nil(t, chCtx.Get(commands.GetSegmentsParameterName()))
	assert.Empty(t, store.Keys())
	assert.Len(t, store.Deletes, 1)
}
