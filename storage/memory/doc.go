// Package memory provides an in-memory implementation of the storage interfaces.
//
// Store implements storage.CodeStore and storage.TokenStore with maps guarded by a
// sync.RWMutex. Nothing is persisted: every code and token is lost on restart.
//
// Expired entries are evicted when they are looked up, and a background goroutine
// sweeps the remaining expired codes and tokens every cleanup interval. The sweep
// never removes a live entry.
//
// Example usage:
//
//	store := memory.NewWithInterval(time.Minute)
//	defer store.Stop()
//
//	srv, _ := oauth.NewServer(store, store, config, logger)
package memory
