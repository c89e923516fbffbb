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

// Package commands holds the units of work the project pipeline chains
// together. Each command reads CtxIn, writes CtxOut, and reads any request
// scoped values from the well known parameter names below.
package commands

// GetProjectIDParameterName is the context key holding the project id.
func GetProjectIDParameterName() string {
	return "__PROJECT_ID__"
}

// GetOwnerIDParameterName is the context key holding the owner id.
func GetOwnerIDParameterName() string {
	return "__OWNER_ID__"
}

// GetFileNameParameterName is the context key holding the caller supplied
// file name of the source video.
func GetFileNameParameterName() string {
	return "__FILE_NAME__"
}

// GetSegmentLengthParameterName is the context key holding the requested
// model.SegmentLengthBucket.
func GetSegmentLengthParameterName() string {
	return "__SEGMENT_LENGTH__"
}

// GetSourcePathParameterName is the context key holding the local path of the
// source video once it has been written to disk.
func GetSourcePathParameterName() string {
	return "__SOURCE_PATH__"
}

// GetOriginalVideoURLParameterName is the context key holding the durable URL
// of the uploaded source video.
func GetOriginalVideoURLParameterName() string {
	return "__ORIGINAL_VIDEO_URL__"
}

func GetTranscriptParameterName() string {
	return "__TRANSCRIPT__"
}

// GetSegmentsParameterName is the context key holding the finalized segments,
// each with a durable URL.
func GetSegmentsParameterName() string {
	return "__SEGMENTS__"
}
