package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenBackend fails every call after Open with errDisk
type brokenBackend struct {
	openErr error
}

var errDisk = errors.New("disk on fire")

func (b *brokenBackend) Open() error                               { return b.openErr }
func (b *brokenBackend) Close() error                              { return nil }
func (b *brokenBackend) Get([]byte) ([]byte, error)                { return nil, errDisk }
func (b *brokenBackend) Has([]byte) (bool, error)                  { return false, errDisk }
func (b *brokenBackend) Put(_, _ []byte) error                     { return errDisk }
func (b *brokenBackend) Delete([]byte) error                       { return errDisk }
func (b *brokenBackend) Write([]KeyValue, [][]byte) error          { return errDisk }
func (b *brokenBackend) NewIterator(_, _ []byte) (Iterator, error) { return nil, errDisk }
func (b *brokenBackend) SizeEstimate() (int64, error)              { return 0, errDisk }
func (b *brokenBackend) Name() Implementation                      { return "broken" }
func (b *brokenBackend) Path() string                              { return "/dev/null" }

func TestEngineIOFailures(t *testing.T) {
	engine := NewEngine(&brokenBackend{}, EngineOptions{})
	require.NoError(t, engine.Start())
	defer engine.Stop()

	var ioErr *IOError

	err := engine.Put([]byte("k"), []byte("v"))
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "put", ioErr.Op)
	assert.ErrorIs(t, err, errDisk)

	_, _, err = engine.Get([]byte("k"))
	assert.ErrorAs(t, err, &ioErr)

	_, err = engine.Has([]byte("k"))
	assert.ErrorAs(t, err, &ioErr)

	assert.ErrorAs(t, engine.Delete([]byte("k")), &ioErr)

	results, err := engine.BatchPut([]KeyValue{{Key: []byte("k")}})
	assert.ErrorAs(t, err, &ioErr)
	assert.Nil(t, results)

	_, err = engine.Values(nil)
	assert.ErrorAs(t, err, &ioErr)

	// stream creation succeeds, the failure arrives at the end of the stream
	stream, err := engine.ValuesStream(context.Background(), nil)
	require.NoError(t, err)
	_, err = Collect(stream)
	assert.ErrorAs(t, err, &ioErr)

	// validation happens before the backend is touched
	assert.ErrorIs(t, engine.Put(nil, nil), ErrInvalidKey)

	// size estimation failures are not fatal
	assert.Equal(t, int64(0), engine.GetInfo().SizeBytes)
}

func TestEngineOpenFailure(t *testing.T) {
	engine := NewEngine(&brokenBackend{openErr: errDisk}, EngineOptions{})

	err := engine.Start()
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "open", ioErr.Op)

	assert.ErrorIs(t, engine.Put([]byte("k"), nil), ErrNotReady)
}

func TestEngineEmptyRangeSkipsBackend(t *testing.T) {
	engine := NewEngine(&brokenBackend{}, EngineOptions{})
	require.NoError(t, engine.Start())
	defer engine.Stop()

	values, err := engine.Values(&FilterOptions{Gt: []byte("b"), Lt: []byte("a")})
	require.NoError(t, err)
	assert.Empty(t, values)
}
