// Package lstore implements store.IStore in process, directly on top of an
// injected db.Engine.
//
// The local store is what the server side of the bridge and the CLI use to reach the
// engine. It adds nothing but context checks and error classification:
//
//   - A context that is already done fails the call with store.ErrTimeout or
//     store.ErrCanceled before the engine is touched. Engine calls are short and not
//     interrupted once started, streams observe the context for their whole lifetime.
//   - Engine errors are mapped with store.FromError, per item for BatchPut.
//
// The store never starts or stops the engine. There is no package level engine
// instance, every store gets its engine by injection:
//
//	engine := leveldb.New(path, db.EngineOptions{})
//	if err := engine.Start(); err != nil {
//		return err
//	}
//	defer engine.Stop()
//
//	s := lstore.NewLocalStore(engine)
//	err := s.Put(ctx, key, value)
package lstore
