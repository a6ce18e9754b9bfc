package translate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const (
	// RecordSize is the on-disk size of one mapping.
	RecordSize = 48
	// MaxIDLength is the longest primary id that fits in a record key.
	MaxIDLength = keySize - 1

	keySize = 32
)

var (
	// ErrInvalidMapping is returned when Register receives a sentinel value.
	ErrInvalidMapping = errors.New("translate: invalid mapping")
	// ErrClosed is returned by Register after Close.
	ErrClosed = errors.New("translate: cache closed")
)

// Key identifies an item in the primary service's catalog.
type Key struct {
	ItemType byte
	ID       string
}

func (k Key) String() string {
	return fmt.Sprintf("%c:%s", k.ItemType, k.ID)
}

// recordFile is the part of *os.File the cache reads and appends through.
type recordFile interface {
	io.ReadWriteSeeker
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

// Cache is the bidirectional identifier index backed by an append-only file.
type Cache struct {
	mu   sync.RWMutex
	file recordFile
	// size is the length of the intact records in file.
	size   int64
	path   string
	aToB   map[Key]int64
	bToA   map[int64]Key
	logger *zap.Logger
}

// Open loads the cache file at path, creating it if needed.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open translation cache: %w", err)
	}

	c := &Cache{
		file:   f,
		path:   path,
		aToB:   make(map[Key]int64),
		bToA:   make(map[int64]Key),
		logger: logger,
	}

	if err := c.load(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) load() error {
	info, err := c.file.Stat()
	if err != nil {
		return fmt.Errorf("stat translation cache: %w", err)
	}

	var (
		rec   [RecordSize]byte
		valid int64
	)
	for {
		_, err := io.ReadFull(c.file, rec[:])
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read translation cache: %w", err)
		}
		key, idB, ok := decodeRecord(rec[:])
		if !ok {
			break
		}
		c.index(key, idB)
		valid += RecordSize
	}

	if valid != info.Size() {
		c.logger.Warn("Discarding damaged translation records",
			zap.String("path", c.path),
			zap.Int64("kept_bytes", valid),
			zap.Int64("file_bytes", info.Size()),
		)
		if err := c.file.Truncate(valid); err != nil {
			return fmt.Errorf("truncate translation cache: %w", err)
		}
	}
	if _, err := c.file.Seek(valid, io.SeekStart); err != nil {
		return fmt.Errorf("seek translation cache: %w", err)
	}
	c.size = valid

	c.logger.Debug("Translation cache loaded", zap.String("path", c.path), zap.Int("entries", len(c.aToB)))
	return nil
}

// LookupAtoB returns the secondary id for a primary item.
func (c *Cache) LookupAtoB(itemType byte, idA string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idB, ok := c.aToB[Key{ItemType: itemType, ID: idA}]
	return idB, ok
}

// LookupBtoA returns the primary item for a secondary id.
func (c *Cache) LookupBtoA(idB int64) (Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.bToA[idB]
	return key, ok
}

// Register records that (itemType, idA) and idB name the same item. It
// reports whether the mapping changed; unchanged mappings do not touch disk.
func (c *Cache) Register(itemType byte, idA string, idB int64) (bool, error) {
	if idA == "" || idB <= 0 || len(idA) > MaxIDLength || itemType == 0 || strings.IndexByte(idA, 0) >= 0 {
		return false, fmt.Errorf("%w: %c %q -> %d", ErrInvalidMapping, itemType, idA, idB)
	}
	key := Key{ItemType: itemType, ID: idA}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return false, ErrClosed
	}
	if cur, ok := c.aToB[key]; ok && cur == idB {
		if back, ok := c.bToA[idB]; ok && back == key {
			return false, nil
		}
	}

	rec := encodeRecord(key, idB)
	if _, err := c.file.Write(rec); err != nil {
		c.rewind()
		return false, fmt.Errorf("append translation record: %w", err)
	}
	if err := c.file.Sync(); err != nil {
		c.rewind()
		return false, fmt.Errorf("sync translation cache: %w", err)
	}

	c.size += RecordSize
	c.index(key, idB)
	return true, nil
}

// rewind cuts a failed append back to the last intact record so later
// records stay aligned.
func (c *Cache) rewind() {
	if err := c.file.Truncate(c.size); err != nil {
		c.logger.Error("Failed to truncate translation cache", zap.String("path", c.path), zap.Error(err))
	}
	if _, err := c.file.Seek(c.size, io.SeekStart); err != nil {
		c.logger.Error("Failed to seek translation cache", zap.String("path", c.path), zap.Error(err))
	}
}

// Len returns the number of primary keys with a mapping.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.aToB)
}

// Close releases the backing file.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// index installs key <-> idB, dropping stale entries on both sides.
func (c *Cache) index(key Key, idB int64) {
	if old, ok := c.aToB[key]; ok && old != idB {
		if back, ok := c.bToA[old]; ok && back == key {
			delete(c.bToA, old)
		}
	}
	if old, ok := c.bToA[idB]; ok && old != key {
		if fwd, ok := c.aToB[old]; ok && fwd == idB {
			delete(c.aToB, old)
		}
	}
	c.aToB[key] = idB
	c.bToA[idB] = key
}

func encodeRecord(key Key, idB int64) []byte {
	rec := make([]byte, RecordSize)
	rec[0] = key.ItemType
	copy(rec[1:keySize], key.ID)
	binary.LittleEndian.PutUint64(rec[keySize:keySize+8], uint64(idB))
	binary.LittleEndian.PutUint64(rec[keySize+8:], xxhash.Sum64(rec[:keySize+8]))
	return rec
}

func decodeRecord(rec []byte) (Key, int64, bool) {
	if xxhash.Sum64(rec[:keySize+8]) != binary.LittleEndian.Uint64(rec[keySize+8:]) {
		return Key{}, 0, false
	}
	id := rec[1:keySize]
	if i := bytes.IndexByte(id, 0); i >= 0 {
		id = id[:i]
	}
	idB := int64(binary.LittleEndian.Uint64(rec[keySize : keySize+8]))
	if rec[0] == 0 || len(id) == 0 || idB <= 0 {
		return Key{}, 0, false
	}
	return Key{ItemType: rec[0], ID: string(id)}, idB, true
}
