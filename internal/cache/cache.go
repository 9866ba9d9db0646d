// Package cache keeps transformed module output keyed by the digest of the
// raw content and the rules applied to it, in memory and optionally on disk.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"kiln/internal/deps"
	"kiln/internal/diag"
	"kiln/internal/source"
	"kiln/internal/transform"
)

// schemaVersion changes whenever Entry changes shape.
const schemaVersion uint16 = 1

// Entry is everything the loader derives from one (content, rules) pair.
type Entry struct {
	Schema   uint16
	Code     []byte
	Deps     []deps.Dependency
	ESM      bool
	Assets   []transform.Asset
	Warnings []diag.Diagnostic
}

// Memory is a bounded in-process cache.
type Memory struct {
	entries *lru.Cache[source.Digest, *Entry]
}

func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = 1024
	}
	entries, err := lru.New[source.Digest, *Entry](size)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: entries}, nil
}

func (m *Memory) Get(key source.Digest) (*Entry, bool) {
	return m.entries.Get(key)
}

func (m *Memory) Put(key source.Digest, e *Entry) {
	m.entries.Add(key, e)
}

func (m *Memory) Len() int { return m.entries.Len() }

// Store layers Memory over an optional Disk. Disk failures are logged and
// treated as misses.
type Store struct {
	mem  *Memory
	disk *Disk
	log  zerolog.Logger
}

// NewStore builds a store; disk may be nil.
func NewStore(ctx context.Context, mem *Memory, disk *Disk) *Store {
	return &Store{mem: mem, disk: disk, log: zerolog.Ctx(ctx).With().Str("component", "cache").Logger()}
}

func (s *Store) Get(key source.Digest) (*Entry, bool) {
	if e, ok := s.mem.Get(key); ok {
		return e, true
	}
	if s.disk == nil {
		return nil, false
	}
	e, ok, err := s.disk.Get(key)
	if err != nil {
		s.log.Debug().Err(err).Str("key", key.Short(12)).Msg("disk cache read failed")
		return nil, false
	}
	if ok {
		s.mem.Put(key, e)
	}
	return e, ok
}

func (s *Store) Put(key source.Digest, e *Entry) {
	s.mem.Put(key, e)
	if s.disk == nil {
		return
	}
	if err := s.disk.Put(key, e); err != nil {
		s.log.Warn().Err(err).Str("key", key.Short(12)).Msg("disk cache write failed")
	}
}
