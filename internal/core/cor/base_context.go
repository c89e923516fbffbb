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

// Package cor (Chain of Responsibility) provides the building blocks the
// pipelines are assembled from. This file defines `BaseContext`, the default
// implementation of the `Context` interface.
//
// A BaseContext is the state of one workflow run. It holds the values commands
// pass to each other, the errors they record keyed by command name, and the
// resources to release when the run ends: local temp files and cleanup
// functions for anything remote. The owner of the run calls Close exactly once
// after the chain finishes.
package cor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// BaseContext is the default Context implementation. It is owned by a single
// workflow run and is not safe for concurrent use.
type BaseContext struct {
	data       map[string]interface{} // Values shared between commands.
	errors     map[string]error       // Errors keyed by the name of the command that recorded them.
	errorOrder []string               // Keys of errors in the order they were first recorded.
	tempFiles  []string               // Local files removed by Close.
	cleanups   []CleanupFunc          // Functions run by Close, newest first.
	context    context.Context        // Go context for cancellation and tracing.
}

// NewBaseContext is the constructor for BaseContext. The Go context is unset;
// callers must call SetContext before handing the Context to a chain.
//
// Inputs:
//   - None.
//
// Outputs:
//   - Context: An empty context with no values, errors or tracked resources.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
	}
}

// SetContext replaces the Go context seen by subsequent commands.
func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

// GetContext returns the current Go context, or nil before SetContext.
func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close removes every tracked temp file that still exists, then runs the
// registered cleanups newest first. A missing temp file is not an error.
func (c *BaseContext) Close(ctx context.Context) error {
	var err error
	for _, file := range c.tempFiles {
		if rmErr := os.Remove(file); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.WarnContext(ctx, "failed to remove temporary file", "file", file, "error", rmErr)
			err = errors.Join(err, fmt.Errorf("remove %s: %w", file, rmErr))
		}
	}
	c.tempFiles = c.tempFiles[:0]

	for i := len(c.cleanups) - 1; i >= 0; i-- {
		if cErr := c.cleanups[i](ctx); cErr != nil {
			slog.WarnContext(ctx, "cleanup failed", "error", cErr)
			err = errors.Join(err, cErr)
		}
	}
	c.cleanups = nil
	return err
}

// Add stores value under key, overwriting any previous value.
func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

// AddTempFile tracks a local file for removal by Close.
func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

// AddCleanup registers fn to run on Close.
func (c *BaseContext) AddCleanup(fn CleanupFunc) {
	c.cleanups = append(c.cleanups, fn)
}

// AddError records err for key. A second error for the same key replaces the
// first but keeps its original position.
func (c *BaseContext) AddError(key string, err error) {
	if _, ok := c.errors[key]; !ok {
		c.errorOrder = append(c.errorOrder, key)
	}
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

// Err joins the recorded errors in first-recorded order, each prefixed with
// its key. It returns nil when no error was recorded.
func (c *BaseContext) Err() error {
	if len(c.errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(c.errorOrder))
	for _, key := range c.errorOrder {
		errs = append(errs, fmt.Errorf("%s: %w", key, c.errors[key]))
	}
	return errors.Join(errs...)
}

func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}
