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

// Package test provides helpers and in-memory fakes shared by the test suites:
// a cached test configuration, a fake ffmpeg executable and fakes for the
// object store, transcriber and segment selector.
package test

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
)

// StateManager caches the test configuration so it is decoded once per run.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is set.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ConfigDir returns the absolute path of the repository's configs directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at configs/ with the "test" runtime.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir())
	if err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig returns the decoded test configuration. Callers must not mutate
// it; use CopyConfig for a private copy.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	})
	return state.config
}

// CopyConfig returns a shallow copy of the test configuration with its own
// AgentModels map.
func CopyConfig() *cloud.Config {
	base := GetConfig()
	c := *base
	c.AgentModels = make(map[string]cloud.VertexAiLLMModel, len(base.AgentModels))
	for k, v := range base.AgentModels {
		c.AgentModels[k] = v
	}
	return &c
}

// fakeFFmpegScript writes "clip" into every clip output argument.
const fakeFFmpegScript = `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    *segment_*.mp4) echo clip > "$arg" ;;
  esac
done
`

const failingFFmpegScript = `#!/bin/sh
echo "Invalid data found when processing input" >&2
exit 1
`

// WriteFakeFFmpeg installs an executable that stands in for ffmpeg and
// returns its path. The failing variant exits 1 without output.
func WriteFakeFFmpeg(t *testing.T, failing bool) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}
	script := fakeFFmpegScript
	if failing {
		script = failingFFmpegScript
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	HandleErr(os.WriteFile(path, []byte(script), 0o755), t)
	return path
}

// ListFiles returns the names of the regular files in dir.
func ListFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	HandleErr(err, t)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
