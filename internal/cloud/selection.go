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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"google.golang.org/genai"
)

// SegmentSelectionSchema constrains model output to `{"segments":[{rank,start,end,reason}]}`.
func SegmentSelectionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"segments": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"rank":   {Type: genai.TypeInteger, Description: "1 is the most promising segment"},
						"start":  {Type: genai.TypeNumber, Description: "start offset in seconds"},
						"end":    {Type: genai.TypeNumber, Description: "end offset in seconds"},
						"reason": {Type: genai.TypeString, Description: "why this range should perform well"},
					},
					Required:         []string{"rank", "start", "end", "reason"},
					PropertyOrdering: []string{"rank", "start", "end", "reason"},
				},
			},
		},
		Required: []string{"segments"},
	}
}

// GeminiSegmentSelector renders the selection prompt, calls the model once and
// strictly parses the answer.
type GeminiSegmentSelector struct {
	model    TextGenerator
	template *template.Template
}

// NewGeminiSegmentSelector parses promptTemplate, which may reference
// {{.TRANSCRIPT}}, {{.SEGMENT_LENGTH}} and {{.EXAMPLE_JSON}}.
func NewGeminiSegmentSelector(model TextGenerator, promptTemplate string) (*GeminiSegmentSelector, error) {
	tmpl, err := template.New("selection-template").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse selection prompt: %w", err)
	}
	return &GeminiSegmentSelector{model: model, template: tmpl}, nil
}

// BuildPrompt renders the selection prompt for transcript and bucket.
func (s *GeminiSegmentSelector) BuildPrompt(transcript string, bucket model.SegmentLengthBucket) (string, error) {
	example, err := json.Marshal(model.GetExampleSelection())
	if err != nil {
		return "", err
	}
	params := map[string]interface{}{
		"TRANSCRIPT":     transcript,
		"SEGMENT_LENGTH": string(bucket),
		"EXAMPLE_JSON":   string(example),
	}
	var buffer bytes.Buffer
	if err := s.template.Execute(&buffer, params); err != nil {
		return "", fmt.Errorf("failed to execute selection prompt: %w", err)
	}
	return buffer.String(), nil
}

func (s *GeminiSegmentSelector) SelectSegments(ctx context.Context, transcript string, bucket model.SegmentLengthBucket) ([]*model.Segment, error) {
	prompt, err := s.BuildPrompt(transcript, bucket)
	if err != nil {
		return nil, err
	}
	out, err := s.model.GenerateText(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("selection request failed: %w", err)
	}
	return model.ParseSegmentSelection(out)
}
