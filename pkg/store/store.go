// Package store keeps opaque string blobs by key.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	xos "github.com/opencloud/opencloud/pkg/os"
)

// Store is a key/value keeper of opaque strings.
// A missing key is not an error, it reads as an empty string.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

const (
	KeyAuthState   = "auth_state"
	KeyAppSettings = "app_settings"
)

const lockTimeout = 5 * time.Second

var (
	ErrBadKey = errors.New("store: bad key")
	ErrLocked = errors.New("store: locked by another process")
)

var keyRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// FileStore keeps each key in its own file in the dir.
type FileStore struct {
	dir  string
	lock *xos.Flock
	mu   sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".opencloud")
	}
	if err := xos.CheckCreateDir(dir); err != nil {
		return nil, err
	}
	lock, err := xos.NewFileLock(filepath.Join(dir, ".lock"))
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, lock: lock}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Get(key string) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.lock.RLock(); err != nil {
		return "", err
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func (s *FileStore) Set(key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.lock.TryLockFor(lockTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	defer func() { _ = s.lock.Unlock() }()
	return xos.WriteFileAtomic(path, []byte(value), 0600)
}

func (s *FileStore) path(key string) (string, error) {
	if !keyRe.MatchString(key) {
		return "", ErrBadKey
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// MemStore is a Store without persistence.
type MemStore struct {
	m  map[string]string
	mu sync.Mutex
}

func NewMemStore() *MemStore { return &MemStore{m: make(map[string]string)} }

func (s *MemStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}
