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

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/genai"
)

// ServiceClients holds the process-wide external clients. It is created once
// at startup and passed explicitly to the components that need it.
type ServiceClients struct {
	StorageClient  *storage.Client
	S3Client       *s3.Client
	PubsubClient   *pubsub.Client
	GenAIClient    *genai.Client
	BiqQueryClient *bigquery.Client
	IAMClient      *credentials.IamCredentialsClient
	AgentModels    map[string]*QuotaAwareGenerativeAIModel
	ObjectStore    ObjectStore
	EventPublisher EventPublisher
}

func (c *ServiceClients) Close() {
	if p, ok := c.EventPublisher.(*PubSubEventPublisher); ok {
		p.Stop()
	}
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// NewCloudServiceClients creates only the clients the configuration needs:
// the object store backend, genai, BigQuery when it backs the ledger, and
// Pub/Sub when a notification topic is set.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	cloud := &ServiceClients{
		AgentModels:    make(map[string]*QuotaAwareGenerativeAIModel),
		EventPublisher: NoopEventPublisher{},
	}
	var err error
	fail := func(err error) (*ServiceClients, error) {
		cloud.Close()
		return nil, err
	}

	switch config.Storage.Backend {
	case StorageBackendS3:
		cloud.S3Client, err = NewS3Client(ctx, config.Storage)
		if err != nil {
			return fail(err)
		}
		cloud.ObjectStore = NewS3ObjectStore(cloud.S3Client, config.Storage)
	case StorageBackendGCS:
		cloud.StorageClient, err = storage.NewClient(ctx)
		if err != nil {
			return fail(err)
		}
		if config.Application.SignerServiceAccountEmail != "" {
			cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx)
			if err != nil {
				return fail(err)
			}
		}
		cloud.ObjectStore = NewGCSObjectStore(cloud.StorageClient, cloud.IAMClient, config.Application.SignerServiceAccountEmail, config.Storage)
	default:
		return fail(fmt.Errorf("unknown storage backend %q", config.Storage.Backend))
	}

	cloud.GenAIClient, err = genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		slog.Error("error creating genai client", "error", err)
		return fail(err)
	}

	for amKey, values := range config.AgentModels {
		modelConfig := &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](values.Temperature),
			TopP:             genai.Ptr[float32](values.TopP),
			TopK:             genai.Ptr[float32](values.TopK),
			MaxOutputTokens:  values.MaxTokens,
			SafetySettings:   DefaultSafetySettings,
			ResponseMIMEType: values.OutputFormat,
		}
		if values.SystemInstructions != "" {
			modelConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
		}
		if values.SegmentSchema {
			modelConfig.ResponseMIMEType = "application/json"
			modelConfig.ResponseSchema = SegmentSelectionSchema()
		}
		cloud.AgentModels[amKey] = NewQuotaAwareModel(modelConfig, values.Model, cloud.GenAIClient.Models, values.RateLimit)
	}

	if config.Ledger.Backend == LedgerBackendBigQuery {
		cloud.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			return fail(err)
		}
	}

	if config.Notifications.Topic != "" {
		cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			return fail(err)
		}
		cloud.EventPublisher = NewPubSubEventPublisher(cloud.PubsubClient, config.Notifications.Topic)
	}

	return cloud, nil
}

// AgentModel returns the configured model for key.
func (c *ServiceClients) AgentModel(key string) (*QuotaAwareGenerativeAIModel, error) {
	m, ok := c.AgentModels[key]
	if !ok {
		return nil, fmt.Errorf("agent model %q is not configured", key)
	}
	return m, nil
}
