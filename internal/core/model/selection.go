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

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ParseError reports a selection response that does not match the expected
// schema. Raw holds the offending payload for logging.
type ParseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid segment selection: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid segment selection: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseSegmentSelection strictly decodes `{"segments":[{rank,start,end,reason}]}`
// and returns the segments sorted by rank. Any deviation is a *ParseError.
func ParseSegmentSelection(raw string) ([]*Segment, error) {
	body := stripCodeFence(raw)
	fail := func(reason string, err error) error {
		return &ParseError{Reason: reason, Raw: raw, Err: err}
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var env selectionEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fail("malformed json", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fail("trailing data after json object", nil)
	}
	if len(env.Segments) == 0 {
		return nil, fail("no segments", nil)
	}

	seen := make(map[int]bool, len(env.Segments))
	out := make([]*Segment, 0, len(env.Segments))
	for i, item := range env.Segments {
		if item == nil || item.Rank == nil || item.Start == nil || item.End == nil || item.Reason == nil {
			return nil, fail(fmt.Sprintf("segment %d is missing a required field", i), nil)
		}
		s := &Segment{Rank: *item.Rank, Start: *item.Start, End: *item.End, Reason: strings.TrimSpace(*item.Reason)}
		switch {
		case s.Rank < 1:
			return nil, fail(fmt.Sprintf("segment %d has rank %d", i, s.Rank), nil)
		case seen[s.Rank]:
			return nil, fail(fmt.Sprintf("duplicate rank %d", s.Rank), nil)
		case s.Start < 0:
			return nil, fail(fmt.Sprintf("rank %d starts before zero", s.Rank), nil)
		case s.End <= s.Start:
			return nil, fail(fmt.Sprintf("rank %d ends at %.3f, not after start %.3f", s.Rank, s.End, s.Start), nil)
		case s.Reason == "":
			return nil, fail(fmt.Sprintf("rank %d has no reason", s.Rank), nil)
		}
		seen[s.Rank] = true
		out = append(out, s)
	}
	SortByRank(out)
	return out, nil
}

// ValidateCompleted checks the invariants a completed project must satisfy.
func ValidateCompleted(segments []*Segment) error {
	if len(segments) == 0 {
		return errors.New("completed project has no segments")
	}
	seen := make(map[int]bool, len(segments))
	for _, s := range segments {
		if seen[s.Rank] {
			return fmt.Errorf("duplicate rank %d", s.Rank)
		}
		seen[s.Rank] = true
		if s.End <= s.Start {
			return fmt.Errorf("rank %d: end %.3f is not after start %.3f", s.Rank, s.End, s.Start)
		}
		if !IsDurableURL(s.FilePath) {
			return fmt.Errorf("rank %d: %q is not a durable url", s.Rank, s.FilePath)
		}
	}
	return nil
}

// IsDurableURL reports whether location is an absolute http(s) URL.
func IsDurableURL(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func stripCodeFence(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
