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

package services

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jaycherian/gcp-go-media-shorts/internal/core/model"
)

// CachedLedger serves Get for terminal projects from an LRU cache. Terminal
// projects never change, so cached entries cannot go stale; pending projects
// always hit the underlying ledger.
type CachedLedger struct {
	Ledger
	cache *lru.Cache[string, *model.Project]
}

func NewCachedLedger(inner Ledger, size int) (*CachedLedger, error) {
	cache, err := lru.New[string, *model.Project](size)
	if err != nil {
		return nil, err
	}
	return &CachedLedger{Ledger: inner, cache: cache}, nil
}

func (l *CachedLedger) Get(ctx context.Context, id string) (*model.Project, error) {
	if p, ok := l.cache.Get(id); ok {
		return cloneProject(p), nil
	}
	p, err := l.Ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.State.IsTerminal() {
		l.cache.Add(id, cloneProject(p))
	}
	return p, nil
}

func (l *CachedLedger) Update(ctx context.Context, id string, update ProjectUpdate) error {
	l.cache.Remove(id)
	return l.Ledger.Update(ctx, id, update)
}

// Len reports the number of cached projects.
func (l *CachedLedger) Len() int {
	return l.cache.Len()
}

func cloneProject(p *model.Project) *model.Project {
	c := *p
	c.DetectedSegments = model.CloneSegments(p.DetectedSegments)
	return &c
}
