package config

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ConfigFetcher fetches the raw configuration document from a registry
// cluster together with a monotonically increasing version.
type ConfigFetcher interface {
	FetchConfig(ctx context.Context) (raw []byte, version int64, err error)
}

// RegistrySource polls a registry cluster for the configuration document and
// pushes updates to observers when the document version advances.
type RegistrySource struct {
	observerSet

	fetcher  ConfigFetcher
	interval time.Duration
	snapshot atomic.Pointer[Value]
	version  atomic.Int64
	valid    bool

	cancel context.CancelFunc
	done   chan struct{}
}

const defaultPollInterval = 5 * time.Second

// NewRegistrySource performs the initial fetch synchronously and then polls
// in the background until Close.
func NewRegistrySource(fetcher ConfigFetcher, interval time.Duration) *RegistrySource {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	rs := &RegistrySource{fetcher: fetcher, interval: interval, done: make(chan struct{})}
	rs.snapshot.Store(emptyValue)

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel

	if v, ver, err := rs.fetch(ctx); err == nil {
		rs.snapshot.Store(v)
		rs.version.Store(ver)
		rs.valid = true
	} else {
		zap.L().Error("initial registry config fetch failed", zap.Error(err))
	}

	go rs.poll(ctx)
	return rs
}

func (rs *RegistrySource) Valid() bool {
	return rs.valid
}

func (rs *RegistrySource) Get(path string) *Value {
	return rs.snapshot.Load().At(path)
}

func (rs *RegistrySource) Watch(path string, obs Observer) *Value {
	rs.add(path, obs)
	return rs.snapshot.Load().At(path)
}

// Close stops the poll loop and waits for it to exit.
func (rs *RegistrySource) Close() {
	rs.cancel()
	<-rs.done
}

func (rs *RegistrySource) poll(ctx context.Context) {
	defer close(rs.done)
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		v, ver, err := rs.fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				zap.L().Warn("registry config poll failed", zap.Error(err))
			}
			continue
		}
		if ver <= rs.version.Load() {
			continue
		}
		rs.version.Store(ver)
		old := rs.snapshot.Swap(v)
		zap.L().Info("registry config updated", zap.Int64("version", ver))
		rs.notifyChanged(old, v)
	}
}

func (rs *RegistrySource) fetch(ctx context.Context) (*Value, int64, error) {
	raw, ver, err := rs.fetcher.FetchConfig(ctx)
	if err != nil {
		return nil, 0, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, 0, err
	}
	return NewValue(tree), ver, nil
}
