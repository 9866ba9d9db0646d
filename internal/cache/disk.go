package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"kiln/internal/source"
)

// Disk stores msgpack-encoded, zstd-compressed entries, one file per key.
// Safe for concurrent use.
type Disk struct {
	mu  sync.RWMutex
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// DefaultDir is $XDG_CACHE_HOME/<app>, falling back to ~/.cache/<app>.
func DefaultDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

// OpenDisk creates dir if needed.
func OpenDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Disk{dir: dir, enc: enc, dec: dec}, nil
}

func (c *Disk) Dir() string { return c.dir }

func (c *Disk) pathFor(key source.Digest) string {
	hexKey := key.String()
	// two-level fan-out keeps directories small
	return filepath.Join(c.dir, "mods", hexKey[:2], hexKey+".mpz")
}

// Put encodes and writes an entry, replacing any previous file atomically.
func (c *Disk) Put(key source.Digest, e *Entry) error {
	if c == nil {
		return nil
	}
	payload := *e
	payload.Schema = schemaVersion
	raw, err := msgpack.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	compressed := c.enc.EncodeAll(raw, nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(compressed); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Get reads an entry. Entries written by another schema version are misses.
func (c *Disk) Get(key source.Digest) (*Entry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	compressed, err := os.ReadFile(c.pathFor(key))
	c.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	raw, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress: %w", err)
	}
	var e Entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode: %w", err)
	}
	if e.Schema != schemaVersion {
		return nil, false, nil
	}
	return &e, true, nil
}

// DropAll removes every entry.
func (c *Disk) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}

// Close releases the codec resources.
func (c *Disk) Close() error {
	if c == nil {
		return nil
	}
	c.dec.Close()
	return c.enc.Close()
}
