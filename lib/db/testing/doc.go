// Package testing provides standardised tests and benchmarks for
// storage engines that satisfy the db.Engine interface.
//
// The package contains:
//   - testing: A conformance suite covering point operations, batch results, range bounds,
//     streams, the engine lifecycle and persistence across restarts
//   - benchmark: Performance tests for measuring throughput of common engine operations
//
// Every test gets a fresh temporary directory, so factories only need to map a path to a
// stopped engine.
//
// Example usage:
//
//	factory := func(path string) db.Engine {
//		return leveldb.New(path, db.EngineOptions{})
//	}
//
//	// Running the standard test suite
//	dbtesting.RunEngineTests(t, "LevelDB", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunEngineBenchmarks(b, "LevelDB", factory)
package testing
