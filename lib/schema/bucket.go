package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mpetrunic/ChainGuardian/lib/db"
)

// Bucket partitions the key space by entity type. A key is the bucket byte followed by the id.
//
// The numeric values are part of the on-disk format. New buckets are appended, existing
// values are never reordered or reused.
type Bucket uint8

const (
	BucketAccounts Bucket = iota
	BucketBeaconNodes
	BucketValidators
	BucketNetworkLogs
	BucketValidatorLogs

	bucketCount
)

var bucketNames = [...]string{
	BucketAccounts:      "accounts",
	BucketBeaconNodes:   "beaconNodes",
	BucketValidators:    "validators",
	BucketNetworkLogs:   "networkLogs",
	BucketValidatorLogs: "validatorLogs",
}

var (
	ErrUnknownBucket = errors.New("unknown bucket")
	ErrShortKey      = errors.New("key too short")
)

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	return b < bucketCount
}

func (b Bucket) String() string {
	if !b.Valid() {
		return fmt.Sprintf("bucket(%d)", uint8(b))
	}
	return bucketNames[b]
}

// Buckets returns all known buckets in prefix order.
func Buckets() []Bucket {
	all := make([]Bucket, 0, bucketCount)
	for b := Bucket(0); b < bucketCount; b++ {
		all = append(all, b)
	}
	return all
}

// ParseBucket resolves a bucket by name (case insensitive).
func ParseBucket(name string) (Bucket, error) {
	for b, n := range bucketNames {
		if strings.EqualFold(n, name) {
			return Bucket(b), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBucket, name)
}

// --------------------------------------------------------------------------
// Key Codec
// --------------------------------------------------------------------------

// ComposeKey builds the storage key of id inside bucket.
// The bucket byte is a fixed width prefix, so keys of different buckets never share a prefix
// and a bucket range never contains keys of another bucket.
func ComposeKey(bucket Bucket, id string) []byte {
	key := make([]byte, 1+len(id))
	key[0] = byte(bucket)
	copy(key[1:], id)
	return key
}

// DecomposeKey splits a storage key into bucket and id. It is meant for diagnostics.
func DecomposeKey(key []byte) (Bucket, string, error) {
	if len(key) == 0 {
		return 0, "", ErrShortKey
	}
	bucket := Bucket(key[0])
	if !bucket.Valid() {
		return 0, "", fmt.Errorf("%w: prefix 0x%02x", ErrUnknownBucket, key[0])
	}
	return bucket, string(key[1:]), nil
}

// BucketFilter selects every key of bucket.
func BucketFilter(bucket Bucket) *db.FilterOptions {
	return db.PrefixFilter([]byte{byte(bucket)})
}

// PrefixFilter selects the keys of bucket whose id starts with idPrefix.
func PrefixFilter(bucket Bucket, idPrefix string) *db.FilterOptions {
	return db.PrefixFilter(ComposeKey(bucket, idPrefix))
}

// FormatKey renders a storage key for humans, e.g. "validators/1".
// Keys outside the schema are rendered as hex.
func FormatKey(key []byte) string {
	bucket, id, err := DecomposeKey(key)
	if err != nil {
		return fmt.Sprintf("0x%x", key)
	}
	return bucket.String() + "/" + id
}
