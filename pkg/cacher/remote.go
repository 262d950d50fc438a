package cacher

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/kvcache"
)

const (
	defaultSetWorkers = 2
	setQueueCap       = 1024
	requestTimeout    = 3 * time.Second
)

type setJob struct {
	key   string
	entry *Entry
}

// Remote caches tiles in a remote KV cluster over HTTP, values cbor-encoded.
// Reads go through a local in-memory tier first; writes are handed to a fixed
// set of async workers and dropped with a warning when the queue is full.
type Remote struct {
	hosts    []string
	user     string
	password string
	http     *http.Client

	local *kvcache.Store
	jobs  chan setJob
	next  atomic.Uint64
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewRemote starts numWorkers async set-workers against hosts.
func NewRemote(hosts []string, user, password string, numWorkers uint) *Remote {
	if numWorkers == 0 {
		numWorkers = defaultSetWorkers
	}
	r := &Remote{
		hosts:    hosts,
		user:     user,
		password: password,
		http:     &http.Client{Timeout: requestTimeout},
		local:    kvcache.New(kvcache.Options{}),
		jobs:     make(chan setJob, setQueueCap),
	}
	for i := uint(0); i < numWorkers; i++ {
		r.wg.Add(1)
		go r.setWorker()
	}
	return r
}

func (r *Remote) Get(key string) (*Entry, bool) {
	if raw, ok := r.local.Get(key); ok {
		if e, err := decodeEntry(raw); err == nil {
			return e, true
		}
	}
	raw, err := r.fetch(key)
	if err != nil {
		return nil, false
	}
	e, err := decodeEntry(raw)
	if err != nil {
		zap.L().Warn("cacher: bad remote entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	r.local.Set(key, raw, localTTL)
	return e, true
}

func (r *Remote) Set(key string, e *Entry) {
	select {
	case r.jobs <- setJob{key: key, entry: e}:
	default:
		zap.L().Warn("cacher: set queue full, dropping write", zap.String("key", key))
	}
}

func (r *Remote) Close() {
	r.closeOnce.Do(func() {
		close(r.jobs)
		r.wg.Wait()
		r.local.Close()
	})
}

func (r *Remote) setWorker() {
	defer r.wg.Done()
	for job := range r.jobs {
		raw, err := cbor.Marshal(job.entry)
		if err != nil {
			zap.L().Error("cacher: encode failed", zap.String("key", job.key), zap.Error(err))
			continue
		}
		if err := r.store(job.key, raw); err != nil {
			zap.L().Warn("cacher: remote set failed", zap.String("key", job.key), zap.Error(err))
			continue
		}
		r.local.Set(job.key, raw, localTTL)
	}
}

func (r *Remote) fetch(key string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, r.keyURL(key), nil)
	if err != nil {
		return nil, err
	}
	r.auth(req)
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("cache miss")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cache get: http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (r *Remote) store(key string, raw []byte) error {
	req, err := http.NewRequest(http.MethodPut, r.keyURL(key), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/cbor")
	r.auth(req)
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cache put: http %d", resp.StatusCode)
	}
	return nil
}

func (r *Remote) keyURL(key string) string {
	host := r.hosts[int(r.next.Add(1)%uint64(len(r.hosts)))]
	return fmt.Sprintf("http://%s/tiles/%s", host, url.PathEscape(key))
}

func (r *Remote) auth(req *http.Request) {
	if r.user != "" {
		req.SetBasicAuth(r.user, r.password)
	}
}

func decodeEntry(raw []byte) (*Entry, error) {
	var e Entry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
