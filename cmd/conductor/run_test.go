package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jointwt/conductor/internal"
)

func TestRunCommands(t *testing.T) {
	assert := assert.New(t)

	conf := internal.NewConfig()
	conf.Data = t.TempDir()
	conf.Workers = 1

	var out bytes.Buffer
	err := runCommands(context.Background(), conf, &out, []string{"echo one", "echo two"})
	assert.NoError(err)

	output := out.String()
	assert.Contains(output, "ready -> executing")
	assert.Contains(output, "executing -> finished")
	assert.Contains(output, "one")
	assert.Contains(output, "two")
	assert.NotContains(output, "failed")
}

func TestRunCommandsFailure(t *testing.T) {
	assert := assert.New(t)

	conf := internal.NewConfig()
	conf.Data = t.TempDir()

	var out bytes.Buffer
	err := runCommands(context.Background(), conf, &out, []string{"true", "exit 2"})
	assert.EqualError(err, "error: 1 of 2 tasks failed")
	assert.Contains(out.String(), "failed: error running \"exit 2\": exit status 2")
}
