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
// pipelines are assembled from. This file defines the interfaces every
// component implements.
//
// A Chain runs Commands in order against a shared Context. Each Command reads
// its input from the Context, does one unit of work and writes its output back
// for the next Command. Commands report failure by recording an error on the
// Context rather than returning one, so the chain decides whether to continue.
package cor

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys used for piping values between commands.
const (
	// CtxIn holds the primary input of a command. BaseChain fills it with the
	// previous command's CtxOut value.
	CtxIn = "__IN__"
	// CtxOut is where a command leaves its primary output.
	CtxOut = "__OUT__"
)

// ErrNotExecutable is recorded by a chain when a command's preconditions are
// not met by the current context.
var ErrNotExecutable = errors.New("command not executable")

// CleanupFunc releases a resource acquired during a workflow run that is not a
// local file, for example a remote object.
type CleanupFunc func(ctx context.Context) error

// Context is the shared state object passed through a chain of commands for a
// single workflow execution.
type Context interface {
	// SetContext sets the Go context used for cancellation and tracing.
	SetContext(context context.Context)

	// GetContext returns the Go context.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error, keyed by the name of the command that produced it.
	AddError(key string, err error)

	// GetErrors returns all errors collected so far.
	GetErrors() map[string]error

	// Err joins all recorded errors in the order they were added, or returns nil.
	Err() error

	// Get returns the value stored under key, or nil.
	Get(key string) interface{}

	// Remove deletes the value stored under key.
	Remove(key string)

	// HasErrors reports whether any command recorded an error.
	HasErrors() bool

	// AddTempFile tracks a local file that must be removed when the run ends.
	AddTempFile(file string)

	// GetTempFiles returns the tracked local files.
	GetTempFiles() []string

	// AddCleanup registers fn to run when the Context is closed. Cleanups run
	// in reverse registration order.
	AddCleanup(fn CleanupFunc)

	// Close removes tracked temp files and runs registered cleanups. Every
	// cleanup is attempted; failures are joined into the returned error.
	Close(ctx context.Context) error
}

// Executable is anything with execution logic driven by a Context.
type Executable interface {
	Execute(context Context)
}

// Command is an atomic, testable unit of work.
type Command interface {
	Executable

	// GetName returns the unique name of the command, used for logging and telemetry.
	GetName() string

	// GetInputParam returns the context key the command reads its input from.
	GetInputParam() string

	// GetOutputParam returns the context key the command writes its output to.
	GetOutputParam() string

	// IsExecutable checks the command's preconditions against the Context.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands. A Chain is itself a Command so
// chains can be nested.
type Chain interface {
	Command

	// ContinueOnFailure controls whether later commands still run after one fails.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution sequence.
	AddCommand(command Command) Chain
}
