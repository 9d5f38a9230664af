package leveldb

import (
	"testing"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	dbtesting "github.com/mpetrunic/ChainGuardian/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "LevelDB", func(path string) db.Engine {
		return New(path, db.EngineOptions{})
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunEngineBenchmarks(b, "LevelDB", func(path string) db.Engine {
		return New(path, db.EngineOptions{})
	})
}
