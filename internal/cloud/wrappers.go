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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// QuotaAwareGenerativeAIModel puts a token bucket in front of a genai model so
// concurrent pipelines share the per-project request quota.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter

	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
}

// NewQuotaAwareModel allows requestsPerSecond requests per second with an
// equal burst. Values below one are treated as one.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	meter := otel.Meter("github.com/jaycherian/gcp-go-media-shorts")
	in, err := meter.Int64Counter(fmt.Sprintf("%s.gemini.token.input", name))
	if err != nil {
		slog.Warn("error creating token counter", "model", name, "error", err)
	}
	out, err := meter.Int64Counter(fmt.Sprintf("%s.gemini.token.output", name))
	if err != nil {
		slog.Warn("error creating token counter", "model", name, "error", err)
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSecond)), requestsPerSecond),
		inputTokenCounter:       in,
		outputTokenCounter:      out,
	}
}

// GenerateContent blocks until the limiter admits the request or ctx is done,
// then makes exactly one call to the model.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}

// GenerateText implements TextGenerator.
func (q *QuotaAwareGenerativeAIModel) GenerateText(ctx context.Context, contents []*genai.Content) (string, error) {
	return GenerateMultiModalResponse(ctx, q.inputTokenCounter, q.outputTokenCounter, q, contents)
}
