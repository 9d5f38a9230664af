package lstore

import (
	"context"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/store"
)

type storeImpl struct {
	engine db.Engine
}

// NewLocalStore creates a new local store instance.
// The store calls the injected engine directly. It does not start or stop the engine,
// the lifecycle stays with whoever created it.
func NewLocalStore(engine db.Engine) store.IStore {
	return &storeImpl{
		engine: engine,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, store.FromError(err)
	}
	value, found, err := s.engine.Get(key)
	return value, found, store.FromError(err)
}

func (s *storeImpl) Has(ctx context.Context, key []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, store.FromError(err)
	}
	found, err := s.engine.Has(key)
	return found, store.FromError(err)
}

func (s *storeImpl) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return store.FromError(err)
	}
	return store.FromError(s.engine.Put(key, value))
}

func (s *storeImpl) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return store.FromError(err)
	}
	return store.FromError(s.engine.Delete(key))
}

func (s *storeImpl) BatchPut(ctx context.Context, items []db.KeyValue) ([]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.FromError(err)
	}
	results, err := s.engine.BatchPut(items)
	if err != nil {
		return nil, store.FromError(err)
	}
	for i := range results {
		results[i] = store.FromError(results[i])
	}
	return results, nil
}

func (s *storeImpl) BatchDelete(ctx context.Context, keys [][]byte) error {
	if err := ctx.Err(); err != nil {
		return store.FromError(err)
	}
	return store.FromError(s.engine.BatchDelete(keys))
}

func (s *storeImpl) Keys(ctx context.Context, opts *db.FilterOptions) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.FromError(err)
	}
	keys, err := s.engine.Keys(opts)
	return keys, store.FromError(err)
}

func (s *storeImpl) Values(ctx context.Context, opts *db.FilterOptions) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.FromError(err)
	}
	values, err := s.engine.Values(opts)
	return values, store.FromError(err)
}

func (s *storeImpl) Entries(ctx context.Context, opts *db.FilterOptions) ([]db.KeyValue, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.FromError(err)
	}
	entries, err := s.engine.Entries(opts)
	return entries, store.FromError(err)
}

func (s *storeImpl) Search(ctx context.Context, opts *db.FilterOptions) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.FromError(err)
	}
	values, err := s.engine.Search(opts)
	return values, store.FromError(err)
}

func (s *storeImpl) ValuesStream(ctx context.Context, opts *db.FilterOptions) (*db.Stream, error) {
	return s.stream(ctx, opts, s.engine.ValuesStream)
}

func (s *storeImpl) KeysStream(ctx context.Context, opts *db.FilterOptions) (*db.Stream, error) {
	return s.stream(ctx, opts, s.engine.KeysStream)
}

func (s *storeImpl) EntriesStream(ctx context.Context, opts *db.FilterOptions) (*db.Stream, error) {
	return s.stream(ctx, opts, s.engine.EntriesStream)
}

func (s *storeImpl) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return db.DatabaseInfo{}, store.FromError(err)
	}
	return s.engine.GetInfo(), nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

type openStream func(ctx context.Context, opts *db.FilterOptions) (*db.Stream, error)

// stream opens an engine stream. Errors ending the stream stay engine errors,
// consumers classify them with store.FromError.
func (s *storeImpl) stream(ctx context.Context, opts *db.FilterOptions, open openStream) (*db.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.FromError(err)
	}
	stream, err := open(ctx, opts)
	if err != nil {
		return nil, store.FromError(err)
	}
	return stream, nil
}
