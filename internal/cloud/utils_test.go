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

package cloud_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-media-shorts/internal/cloud"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	test "github.com/jaycherian/gcp-go-media-shorts/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadConfigLayersRuntimeOverBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.toml", `
[application]
name = "shorts"
google_project_id = "base-project"

[storage]
backend = "s3"
bucket = "base-bucket"
region = "us-east-1"

[pipeline]
cut_concurrency = 2
`)
	writeFile(t, dir, ".env.local.toml", `
[application]
google_project_id = "local-project"

[ledger]
backend = "postgres"
`)

	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "local")
	t.Setenv(cloud.EnvLedgerDSN, "postgres://localhost/shorts")
	t.Setenv(cloud.EnvStorageBucket, "")

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, "shorts", config.Application.Name)
	assert.Equal(t, "local-project", config.Application.GoogleProjectId)
	assert.Equal(t, "s3", config.Storage.Backend)
	assert.Equal(t, "base-bucket", config.Storage.Bucket)
	assert.Equal(t, "postgres", config.Ledger.Backend)
	assert.Equal(t, "postgres://localhost/shorts", config.Ledger.DSN)
	assert.Equal(t, 2, config.Pipeline.CutConcurrency)
	assert.Equal(t, "8080", config.Application.Port)
	assert.Equal(t, cloud.DefaultKeyPrefix, config.Storage.KeyPrefix)
	assert.Equal(t, "ffmpeg", config.Pipeline.FFmpegPath)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "STORAGE_BUCKET=from-dotenv\n")

	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "missing")
	t.Setenv(cloud.EnvLedgerDSN, "")
	// godotenv never overrides a variable that is already present.
	t.Setenv(cloud.EnvStorageBucket, "")
	require.NoError(t, os.Unsetenv(cloud.EnvStorageBucket))

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))
	assert.Equal(t, "from-dotenv", config.Storage.Bucket)
	assert.Equal(t, cloud.StorageBackendGCS, config.Storage.Backend)
	assert.Equal(t, cloud.LedgerBackendSQLite, config.Ledger.Backend)
}

func TestLoadConfigRejectsBrokenToml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.toml", "[application\nname = ")
	t.Setenv(cloud.EnvConfigFilePrefix, dir)

	assert.Error(t, cloud.LoadConfig(cloud.NewConfig()))
}

func TestRepositoryTestConfiguration(t *testing.T) {
	config := test.GetConfig()

	assert.Equal(t, "media-shorts", config.Application.Name)
	assert.Equal(t, "media-shorts-test", config.Storage.Bucket)
	assert.Equal(t, "8760h", config.Storage.ExpiresAfter)
	assert.Equal(t, cloud.DefaultExpiresAfter, cloud.Duration(config.Storage.ExpiresAfter, 0))
	assert.False(t, config.Telemetry.Enabled)
	assert.Empty(t, config.Pipeline.StaleCheckSchedule)

	for _, key := range []string{config.Pipeline.TranscriptionModel, config.Pipeline.SelectionModel} {
		m, ok := config.AgentModels[key]
		require.True(t, ok, "agent model %q", key)
		assert.NotEmpty(t, m.Model)
		assert.Positive(t, m.RateLimit)
	}
	assert.True(t, config.AgentModels[config.Pipeline.SelectionModel].SegmentSchema)

	selector, err := cloud.NewGeminiSegmentSelector(nil, config.PromptTemplates.SelectionPrompt)
	require.NoError(t, err)
	prompt, err := selector.BuildPrompt("[00:01] hello", model.SegmentLength60To90)
	require.NoError(t, err)
	assert.Contains(t, prompt, "60-90seconds")
	assert.Contains(t, prompt, "[00:01] hello")
	assert.Contains(t, prompt, `"reason"`)

	_, err = cloud.NewGeminiTranscriber(nil, config.PromptTemplates.TranscriptionPrompt)
	assert.NoError(t, err)
}
