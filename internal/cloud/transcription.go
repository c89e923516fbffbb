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
	"fmt"
	"text/template"

	"google.golang.org/genai"
)

// GeminiTranscriber asks a multimodal model for a timestamped transcript of
// the media at a URL.
type GeminiTranscriber struct {
	model    TextGenerator
	template *template.Template
	mimeType string
}

// NewGeminiTranscriber parses promptTemplate, which may reference {{.MEDIA_URL}}.
func NewGeminiTranscriber(model TextGenerator, promptTemplate string) (*GeminiTranscriber, error) {
	tmpl, err := template.New("transcription-template").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcription prompt: %w", err)
	}
	return &GeminiTranscriber{model: model, template: tmpl, mimeType: contentTypeMP4}, nil
}

func (t *GeminiTranscriber) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, map[string]interface{}{"MEDIA_URL": mediaURL}); err != nil {
		return "", fmt.Errorf("failed to execute transcription prompt: %w", err)
	}

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: buffer.String()},
				{FileData: NewFileData(mediaURL, t.mimeType)},
			},
			Role: "user",
		},
	}
	out, err := t.model.GenerateText(ctx, contents)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return out, nil
}
