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
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

const (
	// ExpirationMetadataKey tags every stored object with an informational
	// expiration date. Nothing in this service enforces it.
	ExpirationMetadataKey = "expiration-date"
	DefaultExpiresAfter   = 365 * 24 * time.Hour

	contentTypeMP4      = "video/mp4"
	contentTypeFallback = "application/octet-stream"
)

// ErrInvalidObjectURL is returned for URLs that do not belong to the store.
var ErrInvalidObjectURL = errors.New("url does not reference an object in this store")

// ObjectStore uploads and deletes byte streams in durable storage.
//
// Upload is idempotent on key: when an object already exists at key its URL is
// returned and nothing is written. Delete of a missing object succeeds.
type ObjectStore interface {
	Upload(ctx context.Context, r io.Reader, key string) (string, error)
	Delete(ctx context.Context, url string) error
	SignedURL(ctx context.Context, url string, ttl time.Duration) (string, error)
}

// NewObjectKey returns `<prefix>/<ownerID>/<uuid>-<fileName>` with spaces in
// the file name replaced by underscores.
func NewObjectKey(prefix, ownerID, fileName string) string {
	name := strings.ReplaceAll(path.Base(fileName), " ", "_")
	return fmt.Sprintf("%s/%s/%s-%s", strings.Trim(prefix, "/"), ownerID, uuid.NewString(), name)
}

// objectAttributes derives the content headers stored with an object.
type objectAttributes struct {
	ContentType        string
	ContentDisposition string
	Metadata           map[string]string
}

func newObjectAttributes(key string, now time.Time, expiresAfter time.Duration) objectAttributes {
	attrs := objectAttributes{
		ContentType: contentTypeFallback,
		Metadata: map[string]string{
			ExpirationMetadataKey: now.Add(expiresAfter).UTC().Format(time.RFC3339),
		},
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".")
	if ext == "mp4" {
		attrs.ContentType = contentTypeMP4
		attrs.ContentDisposition = "attachment"
		return attrs
	}
	if t := filetype.GetType(ext); t != filetype.Unknown && t.MIME.Value != "" {
		attrs.ContentType = t.MIME.Value
	}
	return attrs
}

// keyFromURL strips base from url and returns the object key.
func keyFromURL(base, url string) (string, error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", fmt.Errorf("%w: %s", ErrInvalidObjectURL, url)
	}
	return strings.TrimPrefix(url, prefix), nil
}
