// Package cacher stores finished tiles in a remote KV cluster with a small
// local read-through tier in front of it.
package cacher

import "time"

// Entry is one cached tile.
type Entry struct {
	Data        []byte `cbor:"1,keyasint"`
	ContentType string `cbor:"2,keyasint"`
	CreatedAt   int64  `cbor:"3,keyasint"` // unix seconds
}

// Cacher is the interface the HTTP plane consumes. Set is asynchronous;
// implementations may drop writes under pressure.
type Cacher interface {
	Get(key string) (*Entry, bool)
	Set(key string, e *Entry)
	Close()
}

// TTL policy for the local tier.
const localTTL = 30 * time.Second
