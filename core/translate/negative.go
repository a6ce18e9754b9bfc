package translate

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// NegativeCache remembers primary items the secondary service could not
// resolve, so they are not queried again until the entry expires.
type NegativeCache struct {
	lru *expirable.LRU[Key, time.Time]
}

// NewNegativeCache creates a cache holding at most size entries for ttl.
func NewNegativeCache(size int, ttl time.Duration) *NegativeCache {
	if size <= 0 {
		size = 1024
	}
	return &NegativeCache{
		lru: expirable.NewLRU[Key, time.Time](size, nil, ttl),
	}
}

// MarkFailed records a failed resolution at now.
func (n *NegativeCache) MarkFailed(itemType byte, idA string, now time.Time) {
	n.lru.Add(Key{ItemType: itemType, ID: idA}, now)
}

// Failed reports whether a resolution failed recently.
func (n *NegativeCache) Failed(itemType byte, idA string) bool {
	_, ok := n.lru.Get(Key{ItemType: itemType, ID: idA})
	return ok
}

// Forget drops an entry, typically after the item resolved.
func (n *NegativeCache) Forget(itemType byte, idA string) {
	n.lru.Remove(Key{ItemType: itemType, ID: idA})
}

// Len returns the number of live entries.
func (n *NegativeCache) Len() int {
	return n.lru.Len()
}
