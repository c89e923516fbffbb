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
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings disables blocking so transcripts of arbitrary user
// content are not refused.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

const (
	StorageBackendGCS = "gcs"
	StorageBackendS3  = "s3"

	LedgerBackendSQLite   = "sqlite"
	LedgerBackendPostgres = "postgres"
	LedgerBackendBigQuery = "bigquery"

	DefaultKeyPrefix      = "magicscuts"
	DefaultMaxUploadBytes = int64(1 << 30)
)

// Storage selects and configures the object store.
type Storage struct {
	Backend       string `toml:"backend"`         // "gcs" or "s3".
	Bucket        string `toml:"bucket"`          // Bucket holding originals and clips.
	Region        string `toml:"region"`          // S3 region.
	Endpoint      string `toml:"endpoint"`        // Optional S3-compatible endpoint.
	UsePathStyle  bool   `toml:"use_path_style"`  // Path-style addressing for S3-compatible providers.
	PublicBaseURL string `toml:"public_base_url"` // Overrides the URL prefix returned for stored objects.
	KeyPrefix     string `toml:"key_prefix"`      // First path element of every key.
	ExpiresAfter  string `toml:"expires_after"`   // Informational expiration tag, Go duration.
}

// Ledger selects and configures the project ledger.
type Ledger struct {
	Backend   string `toml:"backend"`    // "sqlite", "postgres" or "bigquery".
	DSN       string `toml:"dsn"`        // File path for sqlite, connection string for postgres.
	Dataset   string `toml:"dataset"`    // BigQuery dataset.
	Table     string `toml:"table"`      // BigQuery table.
	CacheSize int    `toml:"cache_size"` // Terminal projects kept in the read cache; 0 disables it.
}

type PromptTemplates struct {
	TranscriptionPrompt string `toml:"transcription"`
	SelectionPrompt     string `toml:"selection"`
}

type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	SegmentSchema      bool    `toml:"segment_schema"` // Constrain output to the segment selection schema.
	RateLimit          int     `toml:"rate_limit"`     // Requests per second, also the burst size.
}

// Pipeline tunes the project pipeline.
type Pipeline struct {
	FFmpegPath           string `toml:"ffmpeg_path"`
	TempDir              string `toml:"temp_dir"`
	CutConcurrency       int    `toml:"cut_concurrency"`
	MaxUploadBytes       int64  `toml:"max_upload_bytes"`
	TranscriptionModel   string `toml:"transcription_model"` // Key into AgentModels.
	SelectionModel       string `toml:"selection_model"`     // Key into AgentModels.
	StoreTimeout         string `toml:"store_timeout"`
	TranscriptionTimeout string `toml:"transcription_timeout"`
	SelectionTimeout     string `toml:"selection_timeout"`
	CutTimeout           string `toml:"cut_timeout"` // Per clip.
	LedgerTimeout        string `toml:"ledger_timeout"`
	StaleAfter           string `toml:"stale_after"`
	StaleCheckSchedule   string `toml:"stale_check_schedule"` // Cron spec; empty disables the monitor.
	SignedURLTTL         string `toml:"signed_url_ttl"`
}

type Notifications struct {
	Topic string `toml:"topic"` // Pub/Sub topic for terminal project events; empty disables publishing.
}

type Telemetry struct {
	Enabled  bool   `toml:"enabled"` // Export traces and metrics to Google Cloud.
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

// Config is the root of the TOML configuration.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
		Port                      string `toml:"port"`
	} `toml:"application"`
	Storage         Storage                     `toml:"storage"`
	Ledger          Ledger                      `toml:"ledger"`
	PromptTemplates PromptTemplates             `toml:"prompt_templates"`
	AgentModels     map[string]VertexAiLLMModel `toml:"agent_models"`
	Pipeline        Pipeline                    `toml:"pipeline"`
	Notifications   Notifications               `toml:"notifications"`
	Telemetry       Telemetry                   `toml:"telemetry"`
}

func NewConfig() *Config {
	return &Config{
		AgentModels: make(map[string]VertexAiLLMModel),
	}
}

// ApplyDefaults fills values left empty by the configuration files.
func (c *Config) ApplyDefaults() {
	if c.Application.Port == "" {
		c.Application.Port = "8080"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageBackendGCS
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = DefaultKeyPrefix
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = LedgerBackendSQLite
	}
	if c.Pipeline.FFmpegPath == "" {
		c.Pipeline.FFmpegPath = "ffmpeg"
	}
	if c.Pipeline.CutConcurrency < 1 {
		c.Pipeline.CutConcurrency = 1
	}
	if c.Pipeline.MaxUploadBytes <= 0 {
		c.Pipeline.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// Duration parses a configured Go duration, returning fallback when the value
// is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Timeouts are the resolved per-gateway deadlines of the pipeline.
type Timeouts struct {
	Store         time.Duration
	Transcription time.Duration
	Selection     time.Duration
	Cut           time.Duration
	Ledger        time.Duration
}

func (p Pipeline) Timeouts() Timeouts {
	return Timeouts{
		Store:         Duration(p.StoreTimeout, 10*time.Minute),
		Transcription: Duration(p.TranscriptionTimeout, 10*time.Minute),
		Selection:     Duration(p.SelectionTimeout, 5*time.Minute),
		Cut:           Duration(p.CutTimeout, 10*time.Minute),
		Ledger:        Duration(p.LedgerTimeout, 30*time.Second),
	}
}
