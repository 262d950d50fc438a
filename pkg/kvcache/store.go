// Package kvcache is a sharded in-memory byte store with per-key TTL. The
// cacher uses it as the local read-through tier in front of the remote
// cluster.
package kvcache

import (
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	Shards        int           // number of shards (default 64)
	SweepInterval time.Duration // how often expired entries are collected (default 1s)
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 64
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	return o
}

// Metrics is a point-in-time counter snapshot.
type Metrics struct {
	Keys    uint64
	Hits    uint64
	Misses  uint64
	Sets    uint64
	Expired uint64
}

type entry struct {
	val      []byte
	expireAt int64 // unix nano; 0 = no expiry
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

// Store is safe for concurrent use. Values are copied on Set and Get.
type Store struct {
	opts    Options
	shards  []shard
	closeCh chan struct{}
	wg      sync.WaitGroup
	nowFn   func() time.Time

	mKeys    atomic.Uint64
	mHits    atomic.Uint64
	mMisses  atomic.Uint64
	mSets    atomic.Uint64
	mExpired atomic.Uint64
}

func New(opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		opts:    opts,
		shards:  make([]shard, opts.Shards),
		closeCh: make(chan struct{}),
		nowFn:   time.Now,
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]entry)
	}
	s.wg.Add(1)
	go s.sweeper()
	return s
}

func (s *Store) Close() {
	close(s.closeCh)
	s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[int(h%uint64(len(s.shards)))]
}

// Set stores a copy of val under key. ttl <= 0 means no expiry.
func (s *Store) Set(key string, val []byte, ttl time.Duration) {
	cp := make([]byte, len(val))
	copy(cp, val)
	var expireAt int64
	if ttl > 0 {
		expireAt = s.nowFn().Add(ttl).UnixNano()
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, existed := sh.m[key]
	sh.m[key] = entry{val: cp, expireAt: expireAt}
	sh.mu.Unlock()
	s.mSets.Add(1)
	if !existed {
		s.mKeys.Add(1)
	}
}

// Get returns a copy of the value, or ok=false on miss or expiry.
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok || s.expired(e) {
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	cp := make([]byte, len(e.val))
	copy(cp, e.val)
	return cp, true
}

// Delete removes key if present.
func (s *Store) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	if _, ok := sh.m[key]; ok {
		delete(sh.m, key)
		s.decKeys()
	}
	sh.mu.Unlock()
}

func (s *Store) Metrics() Metrics {
	return Metrics{
		Keys:    s.mKeys.Load(),
		Hits:    s.mHits.Load(),
		Misses:  s.mMisses.Load(),
		Sets:    s.mSets.Load(),
		Expired: s.mExpired.Load(),
	}
}

func (s *Store) expired(e entry) bool {
	return e.expireAt != 0 && s.nowFn().UnixNano() >= e.expireAt
}

func (s *Store) decKeys() {
	for {
		cur := s.mKeys.Load()
		if cur == 0 {
			return
		}
		if s.mKeys.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (s *Store) sweeper() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
		}
		now := s.nowFn().UnixNano()
		for i := range s.shards {
			sh := &s.shards[i]
			sh.mu.Lock()
			for k, e := range sh.m {
				if e.expireAt != 0 && now >= e.expireAt {
					delete(sh.m, k)
					s.decKeys()
					s.mExpired.Add(1)
				}
			}
			sh.mu.Unlock()
		}
	}
}
