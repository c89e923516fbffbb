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

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const GCSPublicBaseURL = "https://storage.googleapis.com"

// ToGSURI converts `https://storage.googleapis.com/<bucket>/<key>` into
// `gs://<bucket>/<key>`.
func ToGSURI(url string) (string, bool) {
	rest, ok := strings.CutPrefix(url, GCSPublicBaseURL+"/")
	if !ok || !strings.Contains(rest, "/") {
		return "", false
	}
	return "gs://" + rest, true
}

// GCSObjectStore stores objects in a single Cloud Storage bucket.
type GCSObjectStore struct {
	client       *storage.Client
	iamClient    *credentials.IamCredentialsClient
	signerEmail  string
	bucket       string
	baseURL      string
	expiresAfter time.Duration
	now          func() time.Time
}

// NewGCSObjectStore returns a store for cfg.Bucket. When iamClient is set,
// signed URLs are signed remotely by signerEmail through the IAM credentials API.
func NewGCSObjectStore(client *storage.Client, iamClient *credentials.IamCredentialsClient, signerEmail string, cfg Storage) *GCSObjectStore {
	base := cfg.PublicBaseURL
	if base == "" {
		base = fmt.Sprintf("%s/%s", GCSPublicBaseURL, cfg.Bucket)
	}
	return &GCSObjectStore{
		client:       client,
		iamClient:    iamClient,
		signerEmail:  signerEmail,
		bucket:       cfg.Bucket,
		baseURL:      strings.TrimSuffix(base, "/"),
		expiresAfter: Duration(cfg.ExpiresAfter, DefaultExpiresAfter),
		now:          time.Now,
	}
}

func (s *GCSObjectStore) urlFor(key string) string {
	return s.baseURL + "/" + key
}

func (s *GCSObjectStore) Upload(ctx context.Context, r io.Reader, key string) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(key)

	_, err := obj.Attrs(ctx)
	if err == nil {
		slog.DebugContext(ctx, "object already stored", "bucket", s.bucket, "key", key)
		return s.urlFor(key), nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("failed to check gs://%s/%s: %w", s.bucket, key, err)
	}

	attrs := newObjectAttributes(key, s.now(), s.expiresAfter)
	writer := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = attrs.ContentType
	writer.ContentDisposition = attrs.ContentDisposition
	writer.Metadata = attrs.Metadata

	if written, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to upload gs://%s/%s after %d bytes: %w", s.bucket, key, written, err)
	}
	if err := writer.Close(); err != nil {
		// Another writer won the race for the same key.
		if isPreconditionFailed(err) {
			return s.urlFor(key), nil
		}
		return "", fmt.Errorf("failed to finalize gs://%s/%s: %w", s.bucket, key, err)
	}
	return s.urlFor(key), nil
}

func (s *GCSObjectStore) Delete(ctx context.Context, url string) error {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *GCSObjectStore) SignedURL(ctx context.Context, url string, ttl time.Duration) (string, error) {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return "", err
	}
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: s.now().Add(ttl),
	}
	if s.iamClient != nil && s.signerEmail != "" {
		opts.GoogleAccessID = s.signerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.iamClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.signerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", s.bucket, key, err)
	}
	return u, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
