// Package translate maintains the persistent mapping between the two catalog
// identifier schemes used by the remote services.
//
// The primary service names items by a string id scoped by an item type byte;
// the secondary service names them by a positive int64. Every learned pair is
// appended to a flat file of fixed-size records and indexed in memory in both
// directions.
//
// # File format
//
// Each record is 48 bytes:
//
//	key[32]     item type byte followed by the id, NUL padded
//	idB int64   little endian
//	sum uint64  little endian xxhash64 of the preceding 40 bytes
//
// Records are only ever appended. When a pair is re-registered with a new
// value the newer record wins on reload. A torn trailing record left by a
// crash is discarded and the file truncated back to the last good record.
//
// # Usage
//
//	cache, err := translate.Open("translate.db", logger)
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	if idB, ok := cache.LookupAtoB('P', "3001"); ok {
//	    ...
//	}
//	changed, err := cache.Register('P', "3001", 3001)
package translate
