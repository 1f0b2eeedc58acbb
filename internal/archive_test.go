package internal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jointwt/conductor/task"
)

func TestChunks(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"ab", "cd", "e"}, Chunks("abcde", 2))
	assert.Equal([]string{"ab"}, Chunks("ab", 2))
	assert.Equal([]string{"a"}, Chunks("a", 2))
}

func TestArchivers(t *testing.T) {
	testCases := []struct {
		name string
		new  func(dir string) (Archiver, error)
	}{
		{
			name: "disk",
			new: func(dir string) (Archiver, error) {
				return NewDiskArchiver(filepath.Join(dir, "archive"))
			},
		}, {
			name: "bitcask",
			new: func(dir string) (Archiver, error) {
				return NewBitcaskArchiver(filepath.Join(dir, "archive.db"))
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			archive, err := testCase.new(t.TempDir())
			require.NoError(err)
			defer archive.Close()

			res := TaskResult{
				ID:       "3zKr9xvBdNpHw6YsgyUXFe",
				State:    task.Finished,
				Error:    "exit status 1",
				Data:     TaskData{"output": "nope"},
				Started:  time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
				Finished: time.Date(2020, 1, 2, 3, 4, 6, 0, time.UTC),
			}

			assert.False(archive.Has(res.ID))
			_, err = archive.Get(res.ID)
			assert.True(errors.Is(err, ErrResultNotArchived))

			require.NoError(archive.Archive(res))
			assert.True(archive.Has(res.ID))
			assert.Equal(ErrResultAlreadyArchived, archive.Archive(res))

			got, err := archive.Get(res.ID)
			require.NoError(err)
			assert.Equal(res, got)
		})
	}
}

func TestDiskArchiverRejectsInvalidIDs(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	archive, err := NewDiskArchiver(filepath.Join(dir, "archive"))
	require.NoError(err)

	outside := &DiskArchiver{path: dir}
	require.NoError(outside.Archive(TaskResult{ID: "xx", State: task.Finished}))

	assert.False(archive.Has("..xx"))
	_, err = archive.Get("..xx")
	assert.True(errors.Is(err, ErrResultNotArchived))

	err = archive.Archive(TaskResult{ID: "../xx"})
	assert.True(errors.Is(err, ErrInvalidTaskID))

	assert.True(ValidID("3zKr9xvBdNpHw6YsgyUXFe"))
	assert.False(ValidID(""))
	assert.False(ValidID("a.b"))
}

func TestNewArchiver(t *testing.T) {
	assert := assert.New(t)

	conf := NewConfig()
	conf.Data = t.TempDir()

	archive, err := NewArchiver(conf)
	assert.NoError(err)
	assert.IsType(&NullArchiver{}, archive)
	assert.NoError(archive.Archive(TaskResult{ID: "x"}))
	assert.False(archive.Has("x"))

	conf.Archive = "disk"
	archive, err = NewArchiver(conf)
	assert.NoError(err)
	assert.IsType(&DiskArchiver{}, archive)

	conf.Archive = "tape"
	_, err = NewArchiver(conf)
	assert.True(errors.Is(err, ErrInvalidConfig))
}
