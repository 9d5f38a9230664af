// Package repository provides typed access to the buckets of the store.
//
// A Repository[T] is bound to one store.IStore and one schema.Bucket and converts entities
// with a Codec[T] (JSON by default). The same repository works in process over lstore and
// remotely over the rpc client, it only depends on store.IStore.
//
// Example:
//
//	accounts := repository.New[models.Account](s, schema.BucketAccounts, nil)
//	_ = accounts.Set(ctx, "1", models.Account{Name: "Alice"})
//	alice, found, err := accounts.Get(ctx, "1")
package repository
