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

package cor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-media-shorts/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appendCommand struct {
	cor.BaseCommand
	suffix string
	fail   error
	ran    *[]string
}

func newAppendCommand(name, suffix string, fail error, ran *[]string) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix, fail: fail, ran: ran}
}

func (a *appendCommand) Execute(context cor.Context) {
	*a.ran = append(*a.ran, a.GetName())
	if a.fail != nil {
		context.AddError(a.GetName(), a.fail)
		return
	}
	in := context.Get(a.GetInputParam()).(string)
	context.Add(a.GetOutputParam(), in+a.suffix)
}

func TestChainPipesOutputToNextInput(t *testing.T) {
	var ran []string
	chain := cor.NewBaseChain("pipe")
	chain.AddCommand(newAppendCommand("a", "-a", nil, &ran))
	chain.AddCommand(newAppendCommand("b", "-b", nil, &ran))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, "start")

	chain.Execute(chainCtx)

	assert.False(t, chainCtx.HasErrors())
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, "start-a-b", chainCtx.Get(cor.CtxIn))
	assert.Nil(t, chainCtx.Get(cor.CtxOut))
}

func TestChainStopsAfterFailure(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	chain := cor.NewBaseChain("stop")
	chain.AddCommand(newAppendCommand("a", "-a", boom, &ran))
	chain.AddCommand(newAppendCommand("b", "-b", nil, &ran))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, "start")

	chain.Execute(chainCtx)

	assert.Equal(t, []string{"a"}, ran)
	assert.ErrorIs(t, chainCtx.Err(), boom)
}

func TestChainRecordsNotExecutable(t *testing.T) {
	var ran []string
	chain := cor.NewBaseChain("guard")
	chain.AddCommand(newAppendCommand("a", "-a", nil, &ran))

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())

	chain.Execute(chainCtx)

	assert.Empty(t, ran)
	assert.ErrorIs(t, chainCtx.Err(), cor.ErrNotExecutable)
}

func TestContextCloseRemovesFilesAndRunsCleanups(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.mp4")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o600))

	chainCtx := cor.NewBaseContext()
	chainCtx.AddTempFile(present)
	chainCtx.AddTempFile(filepath.Join(dir, "already-gone.mp4"))

	var order []string
	chainCtx.AddCleanup(func(context.Context) error { order = append(order, "first"); return nil })
	chainCtx.AddCleanup(func(context.Context) error { order = append(order, "second"); return errors.New("remote") })

	err := chainCtx.Close(context.Background())

	assert.EqualError(t, err, "remote")
	assert.Equal(t, []string{"second", "first"}, order)
	_, statErr := os.Stat(present)
	assert.True(t, os.IsNotExist(statErr))
}
