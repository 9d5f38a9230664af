package pebble

import (
	"github.com/cockroachdb/pebble"
	"github.com/mpetrunic/ChainGuardian/lib/db"
)

// Options tunes the pebble instance. Zero values use the pebble defaults.
type Options struct {
	CacheSize    int64
	MemTableSize uint64
}

// DefaultOptions returns options suited for a single desktop process.
func DefaultOptions() Options {
	return Options{
		CacheSize:    64 << 20, // 64MB
		MemTableSize: 32 << 20, // 32MB
	}
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

// backend implements db.Backend on top of cockroachdb/pebble
type backend struct {
	path   string
	opts   Options
	handle *pebble.DB
	cache  *pebble.Cache
}

// New creates a stopped engine persisting its data in the pebble directory at path.
func New(path string, opts db.EngineOptions) db.Engine {
	return NewWithOptions(path, DefaultOptions(), opts)
}

// NewWithOptions is New with explicit pebble tuning.
func NewWithOptions(path string, pebbleOpts Options, opts db.EngineOptions) db.Engine {
	return db.NewEngine(&backend{path: path, opts: pebbleOpts}, opts)
}

func (b *backend) Open() error {
	opts := &pebble.Options{}
	if b.opts.CacheSize > 0 {
		b.cache = pebble.NewCache(b.opts.CacheSize)
		opts.Cache = b.cache
	}
	if b.opts.MemTableSize > 0 {
		opts.MemTableSize = b.opts.MemTableSize
	}

	handle, err := pebble.Open(b.path, opts)
	if err != nil {
		b.releaseCache()
		return err
	}
	b.handle = handle
	return nil
}

func (b *backend) Close() error {
	err := b.handle.Close()
	b.handle = nil
	b.releaseCache()
	return err
}

func (b *backend) releaseCache() {
	if b.cache != nil {
		b.cache.Unref()
		b.cache = nil
	}
}

func (b *backend) Get(key []byte) ([]byte, error) {
	value, closer, err := b.handle.Get(key)
	if err == pebble.ErrNotFound {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (b *backend) Has(key []byte) (bool, error) {
	_, closer, err := b.handle.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (b *backend) Put(key, value []byte) error {
	return b.handle.Set(key, value, pebble.Sync)
}

func (b *backend) Delete(key []byte) error {
	return b.handle.Delete(key, pebble.Sync)
}

func (b *backend) Write(puts []db.KeyValue, deletes [][]byte) error {
	batch := b.handle.NewBatch()
	defer batch.Close()

	for _, kv := range puts {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}
	for _, key := range deletes {
		if err := batch.Delete(key, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (b *backend) NewIterator(lower, upper []byte) (db.Iterator, error) {
	it, err := b.handle.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	return &iter{it: it}, nil
}

func (b *backend) SizeEstimate() (int64, error) {
	it, err := b.handle.NewIter(nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	if !it.First() {
		return 0, it.Error()
	}
	start := append([]byte{}, it.Key()...)
	it.Last()
	end := append(append([]byte{}, it.Key()...), 0x00)

	size, err := b.handle.EstimateDiskUsage(start, end)
	return int64(size), err
}

func (b *backend) Name() db.Implementation {
	return db.ImplPebble
}

func (b *backend) Path() string {
	return b.path
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

type iter struct {
	it *pebble.Iterator
}

func (i *iter) First() bool  { return i.it.First() }
func (i *iter) Last() bool   { return i.it.Last() }
func (i *iter) Next() bool   { return i.it.Next() }
func (i *iter) Prev() bool   { return i.it.Prev() }
func (i *iter) Key() []byte  { return i.it.Key() }
func (i *iter) Error() error { return i.it.Error() }
func (i *iter) Close() error { return i.it.Close() }

func (i *iter) Value() []byte {
	return i.it.Value()
}
