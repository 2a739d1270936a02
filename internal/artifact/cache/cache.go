// Package cache implements the stage-output cache named in
// SPEC_FULL §11: stage outputs are keyed by (epoch, stage) and
// persisted to a pebble KV store. The pipeline writes a summary of the
// snapshot stage here but never reads a cached value back, so a rerun
// re-fetches chain state. Values are ugorji/codec-encoded and, above
// a size threshold, lz4-compressed, mirroring how the pebble-backed KV
// layer and the peer-management compression path are put together
// elsewhere in this codebase.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/pierrec/lz4"
	"github.com/ugorji/go/codec"
)

var (
	// ErrMiss is returned by Get when no value is cached for a key.
	ErrMiss = errors.New("cache: no value for key")

	cborHandle = new(codec.CborHandle)
)

// envelope is the on-disk value shape: a compression flag and the
// (possibly compressed) encoded payload.
type envelope struct {
	Compressed bool   `codec:"c"`
	Payload    []byte `codec:"p"`
}

// Store is a pebble-backed cache of stage outputs.
type Store struct {
	db                 *pebble.DB
	compressAboveBytes int
}

// Open opens (or creates) the cache database at dir.
func Open(dir string, compressAboveBytes int) (*Store, error) {
	db, err := pebble.Open(filepath.Join(dir, "stages.db"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening stage cache: %w", err)
	}
	if compressAboveBytes <= 0 {
		compressAboveBytes = 1 << 20
	}
	return &Store{db: db, compressAboveBytes: compressAboveBytes}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Key formats a stage cache key as "<epoch>/<stage>".
func Key(epoch uint64, stage string) []byte {
	return []byte(fmt.Sprintf("%d/%s", epoch, stage))
}

// Put CBOR-encodes value and stores it under key, compressing the
// encoded payload with lz4 when it exceeds the configured threshold.
func (s *Store) Put(ctx context.Context, key []byte, value interface{}) error {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, cborHandle)
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}

	env := envelope{Payload: buf.Bytes()}
	if buf.Len() > s.compressAboveBytes {
		compressed, err := compress(buf.Bytes())
		if err != nil {
			return fmt.Errorf("compressing cache value: %w", err)
		}
		env.Compressed = true
		env.Payload = compressed
	}

	var envBuf bytes.Buffer
	if err := codec.NewEncoder(&envBuf, cborHandle).Encode(env); err != nil {
		return fmt.Errorf("encoding cache envelope: %w", err)
	}

	return s.db.Set(key, envBuf.Bytes(), pebble.Sync)
}

// Get decodes the value stored under key into dest (a pointer).
func (s *Store) Get(ctx context.Context, key []byte, dest interface{}) error {
	raw, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrMiss
		}
		return err
	}
	defer closer.Close()

	var env envelope
	if err := codec.NewDecoderBytes(raw, cborHandle).Decode(&env); err != nil {
		return fmt.Errorf("decoding cache envelope: %w", err)
	}

	payload := env.Payload
	if env.Compressed {
		payload, err = decompress(payload)
		if err != nil {
			return fmt.Errorf("decompressing cache value: %w", err)
		}
	}

	if err := codec.NewDecoderBytes(payload, cborHandle).Decode(dest); err != nil {
		return fmt.Errorf("decoding cache value: %w", err)
	}
	return nil
}

// Has reports whether key is present, without decoding the value.
func (s *Store) Has(key []byte) bool {
	_, closer, err := s.db.Get(key)
	if err != nil {
		return false
	}
	closer.Close()
	return true
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
