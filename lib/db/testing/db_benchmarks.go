package testing

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/mpetrunic/ChainGuardian/lib/db"
)

// RunEngineBenchmarks runs all benchmarks for an Engine implementation
func RunEngineBenchmarks(b *testing.B, name string, factory EngineFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, startEngine(b, factory))
	})

	b.Run("PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, startEngine(b, factory))
	})

	b.Run("BatchPut", func(b *testing.B) {
		benchmarkBatchPut(b, startEngine(b, factory))
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, startEngine(b, factory))
	})

	b.Run("Get(absent)", func(b *testing.B) {
		benchmarkGetAbsent(b, startEngine(b, factory))
	})

	b.Run("Values", func(b *testing.B) {
		benchmarkValues(b, startEngine(b, factory))
	})

	b.Run("ValuesStream", func(b *testing.B) {
		benchmarkValuesStream(b, startEngine(b, factory))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

const benchKeys = 1000

func benchKey(i int) []byte {
	return []byte(fmt.Sprintf("bench-%06d", i))
}

func preload(b *testing.B, engine db.Engine, n int) {
	items := make([]db.KeyValue, n)
	for i := range items {
		items[i] = db.KeyValue{Key: benchKey(i), Value: []byte("bench-value")}
	}
	if _, err := engine.BatchPut(items); err != nil {
		b.Fatal(err)
	}
}

func benchmarkPut(b *testing.B, engine db.Engine) {
	value := []byte("bench-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.Put(benchKey(i%benchKeys), value); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkPutLargeValue(b *testing.B, engine db.Engine) {
	value := make([]byte, 256*1024)
	rand.Read(value)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.Put(benchKey(i%benchKeys), value); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkBatchPut(b *testing.B, engine db.Engine) {
	items := make([]db.KeyValue, 100)
	for i := range items {
		items[i] = db.KeyValue{Key: benchKey(i), Value: []byte("bench-value")}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.BatchPut(items); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkGet(b *testing.B, engine db.Engine) {
	preload(b, engine, benchKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, _, err := engine.Get(benchKey(i % benchKeys)); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}

func benchmarkGetAbsent(b *testing.B, engine db.Engine) {
	preload(b, engine, benchKeys)
	missing := []byte("missing")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, found, err := engine.Get(missing); err != nil || found {
			b.Fatal("unexpected result for absent key")
		}
	}
}

func benchmarkValues(b *testing.B, engine db.Engine) {
	preload(b, engine, benchKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Values(nil); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkValuesStream(b *testing.B, engine db.Engine) {
	preload(b, engine, benchKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stream, err := engine.ValuesStream(context.Background(), nil)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := db.Collect(stream); err != nil {
			b.Fatal(err)
		}
	}
}
