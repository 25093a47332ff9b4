// Package store persists circuits, keys and proofs by name.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid key")
	ErrBackend    = errors.New("unknown store backend")
)

// well-known keys
const (
	KEY_CIRCUIT  = "circuit.cbor"
	KEY_PK       = "pk.bin"
	KEY_VK       = "vk.bin"
	PREFIX_PROOF = "proofs/"
)

const (
	BACKEND_DIR    = "dir"
	BACKEND_BADGER = "badger"
)

type Store interface {
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open opens the store of the given backend rooted at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BACKEND_DIR, "":
		return OpenDir(path)
	case BACKEND_BADGER:
		return OpenBadger(path)
	}
	return nil, fmt.Errorf("%w: %q", ErrBackend, backend)
}

func ProofKey(id string) string {
	return PREFIX_PROOF + id + ".bin"
}

// Save writes v under key.
func Save(ctx context.Context, s Store, key string, v io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := v.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, buf.Bytes())
}

// Load reads key into v.
func Load(ctx context.Context, s Store, key string, v io.ReaderFrom) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if _, err := v.ReadFrom(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
