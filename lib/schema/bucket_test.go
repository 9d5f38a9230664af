package schema

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeKeyIsPrefixUnique(t *testing.T) {
	ids := []string{"", "1", "10", "1-2", "\x00", "\xff"}

	seen := make(map[string]string)
	for _, b := range Buckets() {
		for _, id := range ids {
			key := string(ComposeKey(b, id))
			pair := b.String() + "/" + id
			prev, dup := seen[key]
			require.False(t, dup, "%s and %s share a key", prev, pair)
			seen[key] = pair
		}
	}

	// a bucket range never contains keys of another bucket
	for _, b := range Buckets() {
		filter := BucketFilter(b)
		for _, other := range Buckets() {
			for _, id := range ids {
				assert.Equal(t, b == other, filter.Contains(ComposeKey(other, id)))
			}
		}
	}
}

func TestDecomposeKey(t *testing.T) {
	bucket, id, err := DecomposeKey(ComposeKey(BucketValidators, "1"))
	require.NoError(t, err)
	assert.Equal(t, BucketValidators, bucket)
	assert.Equal(t, "1", id)

	_, _, err = DecomposeKey(nil)
	assert.ErrorIs(t, err, ErrShortKey)

	_, _, err = DecomposeKey([]byte{0xee, 'x'})
	assert.ErrorIs(t, err, ErrUnknownBucket)

	assert.Equal(t, "accounts/1", FormatKey(ComposeKey(BucketAccounts, "1")))
	assert.Equal(t, "0xee78", FormatKey([]byte{0xee, 'x'}))
}

func TestPrefixFilter(t *testing.T) {
	filter := PrefixFilter(BucketBeaconNodes, "account-")

	assert.True(t, filter.Contains(ComposeKey(BucketBeaconNodes, "account-1")))
	assert.False(t, filter.Contains(ComposeKey(BucketBeaconNodes, "other-1")))
	assert.False(t, filter.Contains(ComposeKey(BucketValidators, "account-1")))
	assert.True(t, bytes.HasPrefix(filter.Gte, []byte{byte(BucketBeaconNodes)}))
}

func TestParseBucket(t *testing.T) {
	for _, b := range Buckets() {
		parsed, err := ParseBucket(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, parsed)
	}

	parsed, err := ParseBucket("VALIDATORS")
	require.NoError(t, err)
	assert.Equal(t, BucketValidators, parsed)

	_, err = ParseBucket("blocks")
	assert.ErrorIs(t, err, ErrUnknownBucket)
	assert.Equal(t, "bucket(42)", Bucket(42).String())
}
