// Package chunkcache implements an optional on-disk cache of previously
// seen chunk bytes, keyed by chunk checksum. The reconstructor consults it
// before scanning seeds or issuing a range fetch, so a chunk only needs to
// be read off a seed or fetched over the network once across repeated
// reconstructions against the same cache directory.
package chunkcache

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
)

// Cache wraps a pebble store of checksum -> chunk bytes.
type Cache struct {
	db *pebble.DB
}

// Open opens (or creates) a cache rooted at dir.
func Open(dir string) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, archiveerr.New(archiveerr.IO, "open chunk cache", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return archiveerr.New(archiveerr.IO, "close chunk cache", err)
	}
	return nil
}

// Get returns the cached bytes for checksum, and whether they were present.
func (c *Cache) Get(checksum []byte) ([]byte, bool, error) {
	val, closer, err := c.db.Get(checksum)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, archiveerr.New(archiveerr.IO, "read chunk cache entry", err)
	}
	defer closer.Close()

	data := append([]byte(nil), val...)
	return data, true, nil
}

// Put stores data under checksum. Existing entries are overwritten with
// identical bytes, since a checksum uniquely determines its chunk content.
func (c *Cache) Put(checksum, data []byte) error {
	if err := c.db.Set(checksum, data, pebble.NoSync); err != nil {
		return archiveerr.New(archiveerr.IO, "write chunk cache entry", err)
	}
	return nil
}

// Has reports whether checksum is already cached, without copying its
// value out.
func (c *Cache) Has(checksum []byte) (bool, error) {
	_, closer, err := c.db.Get(checksum)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, archiveerr.New(archiveerr.IO, "probe chunk cache entry", err)
	}
	closer.Close()
	return true, nil
}
