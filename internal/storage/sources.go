package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SourceStore holds contract source code and ABI blobs, keyed by chain key
// and contract address. Absence of a blob is reported as ErrNotFound, never
// as a panic or an opaque failure.
type SourceStore interface {
	PutSource(ctx context.Context, chainKey, address, source string) (url string, err error)
	GetSource(ctx context.Context, chainKey, address string) (string, error)
	PutABI(ctx context.Context, chainKey, address string, abi []byte) (url string, err error)
	GetABI(ctx context.Context, chainKey, address string) ([]byte, error)
}

// FileSourceStore implements SourceStore on the local filesystem under a
// base path, with the layout sources/{chain}/{address}.sol and
// abis/{chain}/{address}.json. Addresses are lowercased so lookups are
// case-insensitive.
type FileSourceStore struct {
	basePath string
}

// NewFileSourceStore creates a filesystem-backed source store
func NewFileSourceStore(basePath string) (*FileSourceStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating source storage directory: %w", err)
	}
	return &FileSourceStore{basePath: basePath}, nil
}

func (s *FileSourceStore) sourceKey(chainKey, address string) string {
	return filepath.Join("sources", chainKey, strings.ToLower(address)+".sol")
}

func (s *FileSourceStore) abiKey(chainKey, address string) string {
	return filepath.Join("abis", chainKey, strings.ToLower(address)+".json")
}

func (s *FileSourceStore) write(key string, content []byte) (string, error) {
	path := filepath.Join(s.basePath, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating blob directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}
	return key, nil
}

func (s *FileSourceStore) read(key string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(s.basePath, key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return content, nil
}

// PutSource stores contract source code and returns its storage key
func (s *FileSourceStore) PutSource(ctx context.Context, chainKey, address, source string) (string, error) {
	return s.write(s.sourceKey(chainKey, address), []byte(source))
}

// GetSource retrieves contract source code; ErrNotFound if never uploaded
func (s *FileSourceStore) GetSource(ctx context.Context, chainKey, address string) (string, error) {
	content, err := s.read(s.sourceKey(chainKey, address))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// PutABI stores a contract ABI and returns its storage key
func (s *FileSourceStore) PutABI(ctx context.Context, chainKey, address string, abi []byte) (string, error) {
	return s.write(s.abiKey(chainKey, address), abi)
}

// GetABI retrieves a contract ABI; ErrNotFound if never uploaded
func (s *FileSourceStore) GetABI(ctx context.Context, chainKey, address string) ([]byte, error) {
	return s.read(s.abiKey(chainKey, address))
}
