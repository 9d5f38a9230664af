// Package schema defines how entities are laid out in the ordered key space.
//
// Every storage key is one bucket byte followed by the entity id. Because the prefix has a
// fixed width, a bucket range (BucketFilter) contains exactly the keys of that bucket and
// ComposeKey never yields the same key for two different (bucket, id) pairs.
package schema
