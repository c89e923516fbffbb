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

// GetExampleSelection returns a well formed selection used as the few-shot
// example in the selection prompt.
func GetExampleSelection() *SegmentSelection {
	return &SegmentSelection{
		Segments: []*Segment{
			{
				Rank:   1,
				Start:  12.5,
				End:    41,
				Reason: "The speaker reveals the unexpected result of the experiment, a strong hook with a clear payoff.",
			},
			{
				Rank:   2,
				Start:  95,
				End:    122.25,
				Reason: "A self-contained joke with a punchline that lands without earlier context.",
			},
		},
	}
}
