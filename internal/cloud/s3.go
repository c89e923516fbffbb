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
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3ObjectStore stores objects in a single S3 bucket.
type S3ObjectStore struct {
	client       *s3.Client
	presigner    *s3.PresignClient
	bucket       string
	baseURL      string
	expiresAfter time.Duration
	now          func() time.Time
}

// NewS3Client loads the default AWS credential chain with the configured
// region and endpoint overrides.
func NewS3Client(ctx context.Context, cfg Storage) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewS3ObjectStore returns a store over client. Object URLs are
// `https://<bucket>.s3.<region>.amazonaws.com/<key>` unless PublicBaseURL is set.
func NewS3ObjectStore(client *s3.Client, cfg Storage) *S3ObjectStore {
	base := cfg.PublicBaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3ObjectStore{
		client:       client,
		presigner:    s3.NewPresignClient(client),
		bucket:       cfg.Bucket,
		baseURL:      strings.TrimSuffix(base, "/"),
		expiresAfter: Duration(cfg.ExpiresAfter, DefaultExpiresAfter),
		now:          time.Now,
	}
}

func (s *S3ObjectStore) urlFor(key string) string {
	return s.baseURL + "/" + key
}

func (s *S3ObjectStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *S3ObjectStore) Upload(ctx context.Context, r io.Reader, key string) (string, error) {
	found, err := s.exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to check s3://%s/%s: %w", s.bucket, key, err)
	}
	if found {
		slog.DebugContext(ctx, "object already stored", "bucket", s.bucket, "key", key)
		return s.urlFor(key), nil
	}

	attrs := newObjectAttributes(key, s.now(), s.expiresAfter)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(attrs.ContentType),
		Metadata:    attrs.Metadata,
	}
	if attrs.ContentDisposition != "" {
		in.ContentDisposition = aws.String(attrs.ContentDisposition)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return s.urlFor(key), nil
}

func (s *S3ObjectStore) Delete(ctx context.Context, url string) error {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3ObjectStore) SignedURL(ctx context.Context, url string, ttl time.Duration) (string, error) {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign s3://%s/%s: %w", s.bucket, key, err)
	}
	return req.URL, nil
}

func isS3NotFound(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
