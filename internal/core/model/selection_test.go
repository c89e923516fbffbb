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

package model_test

import (
	"encoding/json"
	"testing"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegmentSelectionSortsByRank(t *testing.T) {
	raw := "```json\n" + `{"segments":[
		{"rank":2,"start":40,"end":70,"reason":"second"},
		{"rank":1,"start":2,"end":18,"reason":"first"}
	]}` + "\n```"

	segments, err := model.ParseSegmentSelection(raw)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, 1, segments[0].Rank)
	assert.Equal(t, 16.0, segments[0].Duration())
	assert.Equal(t, 2, segments[1].Rank)
	assert.Empty(t, segments[0].FilePath)
}

func TestParseSegmentSelectionRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `here are your segments`,
		"empty list":     `{"segments":[]}`,
		"unknown field":  `{"segments":[{"rank":1,"start":0,"end":5,"reason":"r","filePath":"/tmp/x"}]}`,
		"missing reason": `{"segments":[{"rank":1,"start":0,"end":5}]}`,
		"zero rank":      `{"segments":[{"rank":0,"start":0,"end":5,"reason":"r"}]}`,
		"duplicate rank": `{"segments":[{"rank":1,"start":0,"end":5,"reason":"r"},{"rank":1,"start":6,"end":9,"reason":"r"}]}`,
		"end before":     `{"segments":[{"rank":1,"start":9,"end":5,"reason":"r"}]}`,
		"negative start": `{"segments":[{"rank":1,"start":-1,"end":5,"reason":"r"}]}`,
		"blank reason":   `{"segments":[{"rank":1,"start":0,"end":5,"reason":"  "}]}`,
		"trailing data":  `{"segments":[{"rank":1,"start":0,"end":5,"reason":"r"}]} {}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			segments, err := model.ParseSegmentSelection(raw)
			assert.Nil(t, segments)
			var parseErr *model.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, raw, parseErr.Raw)
		})
	}
}

func TestExampleSelectionIsParsable(t *testing.T) {
	raw, err := json.Marshal(model.GetExampleSelection())
	require.NoError(t, err)

	segments, err := model.ParseSegmentSelection(string(raw))
	require.NoError(t, err)
	assert.Len(t, segments, 2)
}

func TestValidateCompleted(t *testing.T) {
	ok := []*model.Segment{{Rank: 1, Start: 2, End: 18, Reason: "r", FilePath: "https://bucket.s3.us-east-1.amazonaws.com/k.mp4"}}
	assert.NoError(t, model.ValidateCompleted(ok))

	local := []*model.Segment{{Rank: 1, Start: 2, End: 18, Reason: "r", FilePath: "/tmp/segment_1.mp4"}}
	assert.Error(t, model.ValidateCompleted(local))
	assert.Error(t, model.ValidateCompleted(nil))
}

func TestParseSegmentLengthBucket(t *testing.T) {
	b, err := model.ParseSegmentLengthBucket("15-30seconds")
	require.NoError(t, err)
	assert.Equal(t, model.SegmentLength15To30, b)

	_, err = model.ParseSegmentLengthBucket("forever")
	assert.Error(t, err)
}
