package leveldb

import (
	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

// backend implements db.Backend on top of goleveldb
type backend struct {
	path   string
	handle *leveldb.DB
}

// New creates a stopped engine persisting its data in the leveldb directory at path.
func New(path string, opts db.EngineOptions) db.Engine {
	return db.NewEngine(&backend{path: path}, opts)
}

func (b *backend) Open() error {
	handle, err := leveldb.OpenFile(b.path, nil)
	if err != nil {
		return err
	}
	b.handle = handle
	return nil
}

func (b *backend) Close() error {
	err := b.handle.Close()
	b.handle = nil
	return err
}

func (b *backend) Get(key []byte) ([]byte, error) {
	value, err := b.handle.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, db.ErrKeyNotFound
	}
	return value, err
}

func (b *backend) Has(key []byte) (bool, error) {
	return b.handle.Has(key, nil)
}

func (b *backend) Put(key, value []byte) error {
	return b.handle.Put(key, value, &opt.WriteOptions{Sync: true})
}

func (b *backend) Delete(key []byte) error {
	// goleveldb returns nil for missing keys
	return b.handle.Delete(key, &opt.WriteOptions{Sync: true})
}

func (b *backend) Write(puts []db.KeyValue, deletes [][]byte) error {
	batch := new(leveldb.Batch)
	for _, kv := range puts {
		batch.Put(kv.Key, kv.Value)
	}
	for _, key := range deletes {
		batch.Delete(key)
	}
	return b.handle.Write(batch, &opt.WriteOptions{Sync: true})
}

func (b *backend) NewIterator(lower, upper []byte) (db.Iterator, error) {
	it := b.handle.NewIterator(&util.Range{Start: lower, Limit: upper}, nil)
	return &iter{it: it}, nil
}

func (b *backend) SizeEstimate() (int64, error) {
	// SizeOf needs a concrete upper bound, use the successor of the last key
	it := b.handle.NewIterator(nil, nil)
	defer it.Release()
	if !it.Last() {
		return 0, it.Error()
	}
	limit := append(append([]byte{}, it.Key()...), 0x00)

	sizes, err := b.handle.SizeOf([]util.Range{{Start: nil, Limit: limit}})
	if err != nil {
		return 0, err
	}
	return sizes.Sum(), nil
}

func (b *backend) Name() db.Implementation {
	return db.ImplLevelDB
}

func (b *backend) Path() string {
	return b.path
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

type iter struct {
	it iterator.Iterator
}

func (i *iter) First() bool   { return i.it.First() }
func (i *iter) Last() bool    { return i.it.Last() }
func (i *iter) Next() bool    { return i.it.Next() }
func (i *iter) Prev() bool    { return i.it.Prev() }
func (i *iter) Key() []byte   { return i.it.Key() }
func (i *iter) Value() []byte { return i.it.Value() }
func (i *iter) Error() error  { return i.it.Error() }

func (i *iter) Close() error {
	i.it.Release()
	return nil
}
