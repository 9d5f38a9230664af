package pebble

import (
	"testing"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	dbtesting "github.com/mpetrunic/ChainGuardian/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "Pebble", func(path string) db.Engine {
		return New(path, db.EngineOptions{})
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunEngineBenchmarks(b, "Pebble", func(path string) db.Engine {
		return New(path, db.EngineOptions{})
	})
}
