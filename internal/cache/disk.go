package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	gap "github.com/muesli/go-app-paths"
)

const diskExt = ".kcache"

// DefaultDir is the per-user cache directory for kokorotts.
func DefaultDir() (string, error) {
	dir, err := gap.NewScope(gap.User, "kokorotts").CacheDir()
	if err != nil {
		return "", fmt.Errorf("cache: resolve user cache dir: %w", err)
	}

	return dir, nil
}

// Disk stores one zstd compressed file per entry. When the directory grows
// past maxBytes the least recently written files are removed.
type Disk struct {
	dir      string
	maxBytes int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	stats Stats
}

// NewDisk opens (creating if needed) a cache directory. maxBytes <= 0
// disables eviction.
func NewDisk(dir string, maxBytes int64) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("cache: disk cache directory is empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", dir, err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("cache: zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("cache: zstd decoder: %w", err)
	}

	return &Disk{dir: dir, maxBytes: maxBytes, encoder: enc, decoder: dec}, nil
}

// Dir is the cache directory.
func (d *Disk) Dir() string { return d.dir }

func (d *Disk) path(key Key) string {
	return filepath.Join(d.dir, key.Digest()+diskExt)
}

// Get reads and decodes the entry for key. Unreadable or corrupted files
// count as misses and are removed.
func (d *Disk) Get(key Key) (*Entry, bool) {
	path := d.path(key)

	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		d.stats.Misses++
		return nil, false
	}

	data, err := d.decoder.DecodeAll(raw, nil)
	if err == nil {
		var e *Entry
		if e, err = unmarshalEntry(key, data); err == nil {
			d.stats.Hits++
			return e, true
		}
	}

	slog.Warn("dropping corrupted cache entry", "path", path, "error", err)
	_ = os.Remove(path)
	d.stats.Misses++

	return nil, false
}

// Put encodes entry and writes it atomically.
func (d *Disk) Put(key Key, entry *Entry) error {
	data, err := marshalEntry(key, entry)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}

	compressed := d.encoder.EncodeAll(data, nil)

	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.path(key)

	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	_, werr := tmp.Write(compressed)
	cerr := tmp.Close()

	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: write entry: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: commit entry: %w", err)
	}

	if d.maxBytes > 0 {
		d.evict(path)
	}

	return nil
}

type diskFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (d *Disk) files() []diskFile {
	var out []diskFile

	_ = filepath.WalkDir(d.dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil || de.IsDir() || !strings.HasSuffix(path, diskExt) {
			return nil
		}

		if info, err := de.Info(); err == nil {
			out = append(out, diskFile{path: path, size: info.Size(), modTime: info.ModTime()})
		}

		return nil
	})

	return out
}

// evict removes the oldest files until the directory fits maxBytes. keep is
// never removed.
func (d *Disk) evict(keep string) {
	files := d.files()

	var total int64
	for _, f := range files {
		total += f.size
	}

	slices.SortFunc(files, func(a, b diskFile) int { return a.modTime.Compare(b.modTime) })

	for _, f := range files {
		if total <= d.maxBytes {
			return
		}

		if f.path == keep {
			continue
		}

		if os.Remove(f.path) == nil {
			total -= f.size
			d.stats.Evictions++
		}
	}
}

// Stats reports counters and the current directory size.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	for _, f := range d.files() {
		s.Entries++
		s.Bytes += f.size
	}

	return s
}

// Close releases the zstd codecs.
func (d *Disk) Close() error {
	d.decoder.Close()
	return d.encoder.Close()
}
