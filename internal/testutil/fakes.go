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

package test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
)

const MemoryStoreBaseURL = "https://objects.test"

// MemoryObjectStore is an idempotent in-memory cloud.ObjectStore. Setting
// FailUploadOn makes uploads whose key contains that substring fail.
type MemoryObjectStore struct {
	mu           sync.Mutex
	Objects      map[string][]byte
	Writes       int
	Deletes      []string
	FailUploadOn string
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{Objects: make(map[string][]byte)}
}

func (s *MemoryObjectStore) Upload(ctx context.Context, r io.Reader, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	url := MemoryStoreBaseURL + "/" + key
	if _, ok := s.Objects[key]; ok {
		return url, nil
	}
	if s.FailUploadOn != "" && strings.Contains(key, s.FailUploadOn) {
		return "", fmt.Errorf("upload of %s refused", key)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.Objects[key] = data
	s.Writes++
	return url, nil
}

func (s *MemoryObjectStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := strings.CutPrefix(url, MemoryStoreBaseURL+"/")
	if !ok {
		return cloud.ErrInvalidObjectURL
	}
	delete(s.Objects, key)
	s.Deletes = append(s.Deletes, url)
	return nil
}

func (s *MemoryObjectStore) SignedURL(_ context.Context, url string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s?signed=true&ttl=%d", url, int(ttl.Seconds())), nil
}

// Keys returns the stored keys.
func (s *MemoryObjectStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.Objects))
	for k := range s.Objects {
		keys = append(keys, k)
	}
	return keys
}

// FakeTranscriber returns Transcript or Err and records the URLs it was given.
type FakeTranscriber struct {
	Transcript string
	Err        error
	URLs       []string
}

func (f *FakeTranscriber) Transcribe(_ context.Context, mediaURL string) (string, error) {
	f.URLs = append(f.URLs, mediaURL)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Transcript, nil
}

// FakeSelector parses Response with the production parser, so malformed
// responses fail exactly as they would against a real model.
type FakeSelector struct {
	Response string
	Err      error
	Buckets  []model.SegmentLengthBucket
}

func (f *FakeSelector) SelectSegments(_ context.Context, _ string, bucket model.SegmentLengthBucket) ([]*model.Segment, error) {
	f.Buckets = append(f.Buckets, bucket)
	if f.Err != nil {
		return nil, f.Err
	}
	return model.ParseSegmentSelection(f.Response)
}

// ErrGatewayDown is a generic collaborator failure for tests.
var ErrGatewayDown = errors.New("gateway unavailable")
