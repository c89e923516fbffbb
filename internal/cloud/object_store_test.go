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

package cloud

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObjectKey(t *testing.T) {
	key := NewObjectKey("/magicscuts/", "owner-1", "my holiday clip.mp4")
	assert.Regexp(t, regexp.MustCompile(`^magicscuts/owner-1/[0-9a-f-]{36}-my_holiday_clip\.mp4$`), key)

	other := NewObjectKey("magicscuts", "owner-1", "my holiday clip.mp4")
	assert.NotEqual(t, key, other)
}

func TestObjectAttributes(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mp4 := newObjectAttributes("a/b/clip.MP4", now, 24*time.Hour)
	assert.Equal(t, "video/mp4", mp4.ContentType)
	assert.Equal(t, "attachment", mp4.ContentDisposition)
	assert.Equal(t, "2024-06-02T12:00:00Z", mp4.Metadata[ExpirationMetadataKey])

	png := newObjectAttributes("a/b/thumb.png", now, time.Hour)
	assert.Equal(t, "image/png", png.ContentType)
	assert.Empty(t, png.ContentDisposition)

	unknown := newObjectAttributes("a/b/blob", now, time.Hour)
	assert.Equal(t, "application/octet-stream", unknown.ContentType)
}

func TestKeyFromURL(t *testing.T) {
	key, err := keyFromURL("https://cdn.example.com/media/", "https://cdn.example.com/media/p/o/k.mp4")
	require.NoError(t, err)
	assert.Equal(t, "p/o/k.mp4", key)

	_, err = keyFromURL("https://cdn.example.com/media", "https://cdn.example.com/media/")
	assert.ErrorIs(t, err, ErrInvalidObjectURL)

	_, err = keyFromURL("https://cdn.example.com/media", "https://other.example.com/media/k.mp4")
	assert.ErrorIs(t, err, ErrInvalidObjectURL)
}

func TestToGSURI(t *testing.T) {
	gs, ok := ToGSURI("https://storage.googleapis.com/shorts/magicscuts/o/k.mp4")
	assert.True(t, ok)
	assert.Equal(t, "gs://shorts/magicscuts/o/k.mp4", gs)

	_, ok = ToGSURI("https://shorts.s3.us-east-1.amazonaws.com/k.mp4")
	assert.False(t, ok)

	data := NewFileData("https://storage.googleapis.com/shorts/k.mp4", "video/mp4")
	assert.Equal(t, "gs://shorts/k.mp4", data.FileURI)
	assert.Equal(t, "video/mp4", data.MIMEType)

	passthrough := NewFileData("https://cdn.example.com/k.mp4", "video/mp4")
	assert.Equal(t, "https://cdn.example.com/k.mp4", passthrough.FileURI)
}

func TestPipelineTimeouts(t *testing.T) {
	timeouts := Pipeline{SelectionTimeout: "90s", CutTimeout: "nonsense"}.Timeouts()
	assert.Equal(t, 90*time.Second, timeouts.Selection)
	assert.Equal(t, 10*time.Minute, timeouts.Cut)
	assert.Equal(t, 30*time.Second, timeouts.Ledger)
}
