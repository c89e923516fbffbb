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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // Directory holding the configuration files.
	EnvConfigRuntime    = "GCP_RUNTIME"       // Runtime overlay name, e.g. "local", "test", "prod".

	EnvLedgerDSN     = "LEDGER_DSN"
	EnvStorageBucket = "STORAGE_BUCKET"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes `<prefix>.env.toml` and then `<prefix>.env.<runtime>.toml`
// into baseConfig, so values in the runtime file win. A `<prefix>.env` dotenv
// file is loaded into the process environment first when present, and
// LEDGER_DSN / STORAGE_BUCKET override the decoded values.
func LoadConfig(baseConfig *Config) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	dotEnvFileName := configurationFilePrefix + ConfigFileBaseName
	if fileExists(dotEnvFileName) {
		if err := godotenv.Load(dotEnvFileName); err != nil {
			return fmt.Errorf("failed to load %s: %w", dotEnvFileName, err)
		}
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	slog.Debug("loading configuration", "base", baseConfigFileName, "runtime", envConfigFileName)

	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
	}

	if dsn := os.Getenv(EnvLedgerDSN); dsn != "" {
		baseConfig.Ledger.DSN = dsn
	}
	if bucket := os.Getenv(EnvStorageBucket); bucket != "" {
		baseConfig.Storage.Bucket = bucket
	}
	baseConfig.ApplyDefaults()
	return nil
}

// TextGenerator is a single-shot call to a generative model that returns the
// concatenated text of the response.
type TextGenerator interface {
	GenerateText(ctx context.Context, contents []*genai.Content) (string, error)
}

// GenerateMultiModalResponse sends one request to model, records token usage
// and returns the concatenated text of every candidate. It does not retry.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	model *QuotaAwareGenerativeAIModel,
	content []*genai.Content) (value string, err error) {
	resp, err := model.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	value = strings.TrimSpace(sb.String())
	if value == "" {
		return "", ErrEmptyResponse
	}
	return value, nil
}

// NewFileData references media stored at uri, converting public GCS URLs to
// the gs:// form the model understands.
func NewFileData(uri string, mimeType string) *genai.FileData {
	if gs, ok := ToGSURI(uri); ok {
		uri = gs
	}
	return &genai.FileData{FileURI: uri, MIMEType: mimeType}
}
