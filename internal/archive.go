package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"

	"github.com/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

const (
	archiveDir  = "archive"
	archiveFile = "result.json"
)

var (
	validID = regexp.MustCompile(`^[0-9A-Za-z]+$`)

	ErrResultAlreadyArchived = errors.New("error: result already archived")
	ErrResultNotArchived     = errors.New("error: result not found in archive")
	ErrInvalidTaskID         = errors.New("error: invalid task id")
)

// ValidID returns true if id only uses the characters of a task id and so
// is safe to use as a storage key or path component.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

func Chunks(s string, chunkSize int) []string {
	if chunkSize >= len(s) {
		return []string{s}
	}
	var chunks []string
	chunk := make([]rune, chunkSize)
	n := 0
	for _, r := range s {
		chunk[n] = r
		n++
		if n == chunkSize {
			chunks = append(chunks, string(chunk))
			n = 0
		}
	}
	if n > 0 {
		chunks = append(chunks, string(chunk[:n]))
	}
	return chunks
}

// Archiver is an interface for storing and retrieving the results of
// finished tasks once they have expired from the in-memory result cache.
type Archiver interface {
	Has(id string) bool
	Get(id string) (TaskResult, error)
	Archive(res TaskResult) error
	Close() error
}

// NewArchiver returns the Archiver selected by conf.Archive
func NewArchiver(conf *Config) (Archiver, error) {
	switch conf.Archive {
	case "", "null":
		return NewNullArchiver()
	case "disk":
		return NewDiskArchiver(filepath.Join(conf.Data, archiveDir))
	case "bitcask":
		return NewBitcaskArchiver(filepath.Join(conf.Data, archiveDir+".db"))
	default:
		return nil, fmt.Errorf("%w: unknown archive %q", ErrInvalidConfig, conf.Archive)
	}
}

// NullArchiver implements Archiver using dummy implementaiton stubs
type NullArchiver struct{}

func NewNullArchiver() (Archiver, error) {
	return &NullArchiver{}, nil
}

func (a *NullArchiver) Has(id string) bool                { return false }
func (a *NullArchiver) Get(id string) (TaskResult, error) { return TaskResult{}, ErrResultNotArchived }
func (a *NullArchiver) Archive(res TaskResult) error      { return nil }
func (a *NullArchiver) Close() error                      { return nil }

// DiskArchiver implements Archiver using an on-disk directory structure
// with one directory per 2-letter sequence of the task id and a single
// JSON encoded file per result.
type DiskArchiver struct {
	path string
}

func NewDiskArchiver(p string) (Archiver, error) {
	if err := os.MkdirAll(p, 0755); err != nil {
		log.WithError(err).Error("error creating archive directory")
		return nil, err
	}

	return &DiskArchiver{path: p}, nil
}

func (a *DiskArchiver) makePath(id string) string {
	return filepath.Join(append([]string{a.path}, append(Chunks(id, 2), archiveFile)...)...)
}

func (a *DiskArchiver) fileExists(fn string) bool {
	if _, err := os.Stat(fn); err != nil {
		return false
	}
	return true
}

func (a *DiskArchiver) Has(id string) bool {
	return ValidID(id) && a.fileExists(a.makePath(id))
}

func (a *DiskArchiver) Get(id string) (TaskResult, error) {
	if !ValidID(id) {
		return TaskResult{}, ErrResultNotArchived
	}

	fn := a.makePath(id)
	if !a.fileExists(fn) {
		return TaskResult{}, ErrResultNotArchived
	}

	data, err := ioutil.ReadFile(fn)
	if err != nil {
		log.WithError(err).Errorf("error reading archived result %s", id)
		return TaskResult{}, err
	}

	var res TaskResult

	if err := json.Unmarshal(data, &res); err != nil {
		log.WithError(err).Errorf("error decoding archived result %s", id)
		return TaskResult{}, err
	}

	return res, nil
}

func (a *DiskArchiver) Archive(res TaskResult) error {
	if !ValidID(res.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, res.ID)
	}

	fn := a.makePath(res.ID)
	if a.fileExists(fn) {
		log.Warnf("archived result %s already exists", res.ID)
		return ErrResultAlreadyArchived
	}

	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		log.WithError(err).Errorf("error creating archive directory for result %s", res.ID)
		return err
	}

	data, err := json.Marshal(&res)
	if err != nil {
		log.WithError(err).Errorf("error encoding result %s", res.ID)
		return err
	}

	if err := ioutil.WriteFile(fn, data, 0644); err != nil {
		log.WithError(err).Errorf("error writing result %s to archive", res.ID)
		return err
	}

	return nil
}

func (a *DiskArchiver) Close() error { return nil }

// BitcaskArchiver implements Archiver on top of a bitcask key/value store
// keyed by task id.
type BitcaskArchiver struct {
	db *bitcask.Bitcask
}

func NewBitcaskArchiver(p string) (Archiver, error) {
	db, err := bitcask.Open(p)
	if err != nil {
		log.WithError(err).Error("error opening archive database")
		return nil, err
	}

	return &BitcaskArchiver{db: db}, nil
}

func (a *BitcaskArchiver) Has(id string) bool {
	return a.db.Has([]byte(id))
}

func (a *BitcaskArchiver) Get(id string) (TaskResult, error) {
	data, err := a.db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return TaskResult{}, ErrResultNotArchived
		}
		log.WithError(err).Errorf("error reading archived result %s", id)
		return TaskResult{}, err
	}

	var res TaskResult

	if err := json.Unmarshal(data, &res); err != nil {
		log.WithError(err).Errorf("error decoding archived result %s", id)
		return TaskResult{}, err
	}

	return res, nil
}

func (a *BitcaskArchiver) Archive(res TaskResult) error {
	if a.Has(res.ID) {
		log.Warnf("archived result %s already exists", res.ID)
		return ErrResultAlreadyArchived
	}

	data, err := json.Marshal(&res)
	if err != nil {
		log.WithError(err).Errorf("error encoding result %s", res.ID)
		return err
	}

	if err := a.db.Put([]byte(res.ID), data); err != nil {
		log.WithError(err).Errorf("error writing result %s to archive", res.ID)
		return err
	}

	return nil
}

func (a *BitcaskArchiver) Close() error {
	return a.db.Close()
}
