package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/mpetrunic/ChainGuardian/lib/schema"
	"github.com/mpetrunic/ChainGuardian/lib/store"
)

var Logger = logger.GetLogger("repository")

// Repository is a typed view of one bucket of a store.IStore.
//
// Ids are plain strings, the repository composes the storage key from its bucket and the id.
// Values that can not be decoded fail with store.ErrSerializationFailure, they are never skipped.
type Repository[T any] struct {
	store  store.IStore
	bucket schema.Bucket
	codec  Codec[T]
}

// New creates a repository for bucket. A nil codec selects JSONCodec.
func New[T any](s store.IStore, bucket schema.Bucket, codec Codec[T]) *Repository[T] {
	if codec == nil {
		codec = JSONCodec[T]{}
	}
	return &Repository[T]{
		store:  s,
		bucket: bucket,
		codec:  codec,
	}
}

// Bucket returns the bucket the repository is bound to.
func (r *Repository[T]) Bucket() schema.Bucket {
	return r.bucket
}

// --------------------------------------------------------------------------
// Point Operations
// --------------------------------------------------------------------------

// Get loads the entity stored under id. found is false if there is none.
func (r *Repository[T]) Get(ctx context.Context, id string) (value T, found bool, err error) {
	data, found, err := r.store.Get(ctx, schema.ComposeKey(r.bucket, id))
	if err != nil || !found {
		return value, false, err
	}
	value, err = r.decode(id, data)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return value, true, nil
}

// Set stores value under id, replacing any previous value.
func (r *Repository[T]) Set(ctx context.Context, id string, value T) error {
	data, err := r.encode(id, value)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, schema.ComposeKey(r.bucket, id), data)
}

// Has reports whether an entity is stored under id.
func (r *Repository[T]) Has(ctx context.Context, id string) (bool, error) {
	return r.store.Has(ctx, schema.ComposeKey(r.bucket, id))
}

// Delete removes the entity stored under id. Deleting a missing id succeeds.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, schema.ComposeKey(r.bucket, id))
}

// SetMany stores all values in one atomic batch. Items are written in id order.
// The returned error joins the failures of single items.
func (r *Repository[T]) SetMany(ctx context.Context, values map[string]T) error {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]db.KeyValue, len(ids))
	for i, id := range ids {
		data, err := r.encode(id, values[id])
		if err != nil {
			return err
		}
		items[i] = db.KeyValue{Key: schema.ComposeKey(r.bucket, id), Value: data}
	}

	results, err := r.store.BatchPut(ctx, items)
	if err != nil {
		return err
	}

	var failures []error
	for i, itemErr := range results {
		if itemErr != nil && i < len(ids) {
			failures = append(failures, fmt.Errorf("%s %q: %w", r.bucket, ids[i], itemErr))
		}
	}
	return errors.Join(failures...)
}

// --------------------------------------------------------------------------
// Range Operations
// --------------------------------------------------------------------------

// GetAll returns every entity of the bucket in id order.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	return r.getRange(ctx, schema.BucketFilter(r.bucket))
}

// GetByPrefix returns the entities whose id starts with idPrefix in id order.
func (r *Repository[T]) GetByPrefix(ctx context.Context, idPrefix string) ([]T, error) {
	return r.getRange(ctx, schema.PrefixFilter(r.bucket, idPrefix))
}

// IDs returns the ids of all entities of the bucket in order.
func (r *Repository[T]) IDs(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, schema.BucketFilter(r.bucket))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		_, id, err := schema.DecomposeKey(key)
		if err != nil {
			return nil, store.WrapError(store.RetCInternalError, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Stream decodes the entities of the bucket one at a time and passes them to fn.
// Iteration stops at the first error returned by fn, which is returned unchanged.
func (r *Repository[T]) Stream(ctx context.Context, fn func(value T) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := r.store.ValuesStream(ctx, schema.BucketFilter(r.bucket))
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		kv, ok := stream.Next()
		if !ok {
			return store.FromError(stream.Err())
		}
		value, err := r.decode("", kv.Value)
		if err != nil {
			return err
		}
		if err := fn(value); err != nil {
			return err
		}
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (r *Repository[T]) getRange(ctx context.Context, filter *db.FilterOptions) ([]T, error) {
	data, err := r.store.Values(ctx, filter)
	if err != nil {
		return nil, err
	}
	values := make([]T, 0, len(data))
	for _, d := range data {
		value, err := r.decode("", d)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func (r *Repository[T]) encode(id string, value T) ([]byte, error) {
	data, err := r.codec.Encode(value)
	if err != nil {
		return nil, store.WrapError(store.RetCSerializationFailure, fmt.Errorf("encode %s %q: %w", r.bucket, id, err))
	}
	return data, nil
}

func (r *Repository[T]) decode(id string, data []byte) (T, error) {
	value, err := r.codec.Decode(data)
	if err != nil {
		Logger.Warningf("failed to decode value in %s (id %q): %v", r.bucket, id, err)
		return value, store.WrapError(store.RetCSerializationFailure, fmt.Errorf("decode %s %q: %w", r.bucket, id, err))
	}
	return value, nil
}
