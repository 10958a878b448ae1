// Package cache stores synthesis results keyed by the request that produced
// them. Memory is an LRU bounded by entry count; Disk persists zstd
// compressed msgpack entries under a directory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrCorrupted is returned when a stored entry cannot be decoded.
var ErrCorrupted = errors.New("cache: entry corrupted")

// Key identifies one synthesis request. Language is the resolved language
// code, never empty. Engine fingerprints the weights and text front end
// settings; Embedding is the digest of the resolved voice vector, so a
// reloaded voice under the same name misses.
type Key struct {
	Text      string
	Voice     string
	Language  string
	Speed     float64
	Engine    string
	Embedding string
}

// Digest is a stable hex SHA-256 of the key fields.
func (k Key) Digest() string {
	h := sha256.New()
	for _, field := range []string{k.Text, k.Voice, k.Language, strconv.FormatFloat(k.Speed, 'g', -1, 64), k.Engine, k.Embedding} {
		// length-prefixed so field boundaries cannot shift
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Entry is a cached synthesis result.
type Entry struct {
	SampleRate int       `msgpack:"sample_rate"`
	Samples    []float32 `msgpack:"samples"`
	Phonemes   string    `msgpack:"phonemes"`
	Tokens     []int64   `msgpack:"tokens"`
	Durations  []int64   `msgpack:"durations"`
	Skipped    []rune    `msgpack:"skipped"`
}

// Cache is implemented by Memory and Disk. Implementations are safe for
// concurrent use; returned entries must not be modified.
type Cache interface {
	Get(key Key) (*Entry, bool)
	Put(key Key, entry *Entry) error
	Stats() Stats
}

// Stats counts cache activity.
type Stats struct {
	Entries   int
	Bytes     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate is Hits / (Hits + Misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}

	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

const entryVersion = 1

type envelope struct {
	Version int    `msgpack:"v"`
	Key     string `msgpack:"k"`
	Entry   *Entry `msgpack:"e"`
}

func marshalEntry(key Key, e *Entry) ([]byte, error) {
	return msgpack.Marshal(envelope{Version: entryVersion, Key: key.Digest(), Entry: e})
}

func unmarshalEntry(key Key, raw []byte) (*Entry, error) {
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	if env.Version != entryVersion || env.Key != key.Digest() || env.Entry == nil {
		return nil, fmt.Errorf("%w: version %d key %.12s", ErrCorrupted, env.Version, env.Key)
	}

	return env.Entry, nil
}

// size approximates the in-memory footprint of e.
func (e *Entry) size() int64 {
	return int64(4*len(e.Samples) + 8*len(e.Tokens) + 8*len(e.Durations) + 4*len(e.Skipped) + len(e.Phonemes))
}
