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
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EventPublisher announces terminal project states to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.ProjectEvent) error
}

// NoopEventPublisher drops every event. It is used when no topic is configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, *model.ProjectEvent) error { return nil }

// PubSubEventPublisher publishes project events as JSON messages on a topic.
type PubSubEventPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubEventPublisher(client *pubsub.Client, topicID string) *PubSubEventPublisher {
	return &PubSubEventPublisher{topic: client.Topic(topicID)}
}

// Publish blocks until the server acknowledges the message.
func (p *PubSubEventPublisher) Publish(ctx context.Context, event *model.ProjectEvent) error {
	ctx, span := otel.Tracer("project-events").Start(ctx, "publish-project-event")
	defer span.End()
	span.SetAttributes(
		attribute.String("project_id", event.ProjectID),
		attribute.String("state", string(event.State)),
	)

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"project_id": event.ProjectID,
			"state":      string(event.State),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("failed to publish event for project %s: %w", event.ProjectID, err)
	}
	span.SetStatus(codes.Ok, "published")
	return nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *PubSubEventPublisher) Stop() {
	p.topic.Stop()
}
