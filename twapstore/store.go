package twapstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/kjk/twaps/atomicfile"
	"github.com/kjk/twaps/log"
	"github.com/kjk/twaps/u"
)

const (
	DefaultDirName  = ".twaps"
	DefaultFileName = "twaps.json"
)

// CorruptPolicy says what Upsert does with a store file it can't parse
type CorruptPolicy int

const (
	// CorruptDiscard logs a warning and starts over with an empty store
	CorruptDiscard CorruptPolicy = iota
	// CorruptMoveAside renames the file to <path>.corrupt-<unix time> first
	CorruptMoveAside
)

func (p CorruptPolicy) String() string {
	switch p {
	case CorruptDiscard:
		return "discard"
	case CorruptMoveAside:
		return "move"
	}
	return fmt.Sprintf("CorruptPolicy(%d)", int(p))
}

// ParseCorruptPolicy parses "discard" or "move"
func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	switch s {
	case "", "discard":
		return CorruptDiscard, nil
	case "move":
		return CorruptMoveAside, nil
	}
	return CorruptDiscard, fmt.Errorf("invalid corrupt file policy '%s', must be 'discard' or 'move'", s)
}

type Options struct {
	OnCorrupt CorruptPolicy
	// called after every successful write of the store file
	DidChange func(path string)
	// how often to retry when the file lock is held by someone else
	LockRetryDelay time.Duration
}

type Store struct {
	path string
	opts Options

	// writers take both mu and the file lock
	// readers only take mu.RLock(), writes are atomic renames so
	// a reader always sees a complete file
	mu       sync.RWMutex
	fileLock *flock.Flock
}

// DefaultPath returns ~/.twaps/twaps.json
func DefaultPath() (string, error) {
	return u.HomeDirPath(DefaultDirName, DefaultFileName)
}

// New creates a Store backed by the file at path.
// The file (and its directory) is created on first Upsert.
func New(path string, opts *Options) (*Store, error) {
	if path == "" {
		return nil, errors.New("must provide path")
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	s := &Store{
		path: path,
	}
	if opts != nil {
		s.opts = *opts
	}
	if s.opts.LockRetryDelay <= 0 {
		s.opts.LockRetryDelay = 10 * time.Millisecond
	}
	s.fileLock = flock.New(path + ".lock")
	return s, nil
}

// Path returns absolute path of the store file
func (s *Store) Path() string {
	return s.path
}

// lockFile takes an exclusive lock on <path>.lock
// directory of the store file must exist
func (s *Store) lockFile(ctx context.Context) (func(), error) {
	locked, err := s.fileLock.TryLockContext(ctx, s.opts.LockRetryDelay)
	if err != nil {
		return nil, &PersistenceError{Op: "lock", Path: s.fileLock.Path(), Err: err}
	}
	if !locked {
		return nil, &PersistenceError{Op: "lock", Path: s.fileLock.Path(), Err: errors.New("lock not acquired")}
	}
	return func() {
		err := s.fileLock.Unlock()
		log.IfErrf(err, "twapstore: unlocking '%s' failed with '%s'", s.fileLock.Path(), err)
	}, nil
}

// readRecords returns ErrStoreUninitialized if the file doesn't exist
// and *ParseError if it can't be decoded
func (s *Store) readRecords() ([]Record, error) {
	d, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrStoreUninitialized
		}
		return nil, err
	}
	records, err := UnmarshalRecords(d)
	if err != nil {
		return nil, &ParseError{Path: s.path, Err: err}
	}
	return records, nil
}

func (s *Store) writeRecords(records []Record) error {
	d, err := MarshalRecords(records)
	if err != nil {
		return &PersistenceError{Op: "marshal", Path: s.path, Err: err}
	}
	err = atomicfile.WriteFile(s.path, d, 0644)
	if err != nil {
		return &PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) didChange() {
	if s.opts.DidChange != nil {
		s.opts.DidChange(s.path)
	}
}

// Get returns the first record whose url is key, unmodified
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.readRecords()
	if err != nil {
		return nil, err
	}
	idx := findByURL(records, key)
	if idx < 0 {
		return nil, ErrNotFound
	}
	rec := records[idx]
	return &rec, nil
}

// Lookup returns source of the Twap with url key, with escaped
// line breaks expanded.
// Returns ErrStoreUninitialized if nothing was ever pushed and
// ErrNotFound if there's no such url.
func (s *Store) Lookup(ctx context.Context, key string) (string, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return DecodeSource(rec.Source), nil
}

// List returns all records in file order
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, err := s.readRecords()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (s *Store) handleCorrupt(perr *ParseError) error {
	if s.opts.OnCorrupt == CorruptMoveAside {
		dst := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if err := os.Rename(s.path, dst); err != nil {
			return &PersistenceError{Op: "move corrupt", Path: s.path, Err: err}
		}
		log.Warnf("twapstore: could not read '%s' (%s), moved it to '%s'\n", s.path, perr.Err, dst)
		return nil
	}
	log.Warnf("twapstore: could not read existing '%s', starting with empty store: %s\n", s.path, perr.Err)
	return nil
}

func (s *Store) upsert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	unlock, err := s.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := s.readRecords()
	if err != nil {
		var perr *ParseError
		switch {
		case errors.Is(err, ErrStoreUninitialized):
			records = nil
		case errors.As(err, &perr):
			if err := s.handleCorrupt(perr); err != nil {
				return err
			}
			records = nil
		default:
			return &PersistenceError{Op: "read", Path: s.path, Err: err}
		}
	}

	records, _ = removeByURL(records, rec.URL)
	records = append(records, rec)
	return s.writeRecords(records)
}

// Upsert replaces all records with rec.URL with rec, appended at the end.
// Returns rec.URL.
func (s *Store) Upsert(ctx context.Context, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.upsert(ctx, rec); err != nil {
		return "", err
	}
	log.Verbosef("twapstore: upserted '%s' (%d bytes)\n", rec.URL, len(rec.Source))
	s.didChange()
	return rec.URL, nil
}

func (s *Store) delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// the lock file needs an existing directory
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return false, ErrStoreUninitialized
	}
	unlock, err := s.lockFile(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	records, err := s.readRecords()
	if err != nil {
		return false, err
	}
	records, n := removeByURL(records, key)
	if n == 0 {
		return false, nil
	}
	return true, s.writeRecords(records)
}

// Delete removes all records with url key.
// Returns false if there were none.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted, err := s.delete(ctx, key)
	if err != nil || !deleted {
		return deleted, err
	}
	log.Verbosef("twapstore: deleted '%s'\n", key)
	s.didChange()
	return true, nil
}

// Close releases the lock file handle
func (s *Store) Close() error {
	return s.fileLock.Close()
}
