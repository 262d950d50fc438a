package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FileSource loads configuration from a single JSON/YAML file via viper.
// The snapshot is rebuilt when the file changes on disk; observers of the
// affected paths are notified from the watcher goroutine.
type FileSource struct {
	observerSet

	v        *viper.Viper
	snapshot atomic.Pointer[Value]
	valid    bool
}

// NewFileSource reads path once and starts watching it. A read failure is not
// fatal here; it is reported through Valid.
func NewFileSource(path string) *FileSource {
	fs := &FileSource{v: viper.New()}
	fs.v.SetConfigFile(path)

	err := fs.v.ReadInConfig()
	if err != nil {
		zap.L().Error("config read failed", zap.String("path", path), zap.Error(err))
	}
	fs.valid = err == nil
	fs.snapshot.Store(NewValue(anyMap(fs.v.AllSettings())))

	fs.v.OnConfigChange(func(fsnotify.Event) { fs.reload() })
	fs.v.WatchConfig()
	return fs
}

func (fs *FileSource) Valid() bool {
	return fs.valid
}

func (fs *FileSource) Get(path string) *Value {
	return fs.snapshot.Load().At(path)
}

func (fs *FileSource) Watch(path string, obs Observer) *Value {
	fs.add(path, obs)
	return fs.snapshot.Load().At(path)
}

func (fs *FileSource) reload() {
	if err := fs.v.ReadInConfig(); err != nil {
		zap.L().Error("config reload failed", zap.Error(err))
		return
	}
	next := NewValue(anyMap(fs.v.AllSettings()))
	old := fs.snapshot.Swap(next)
	zap.L().Info("config file reloaded")
	fs.notifyChanged(old, next)
}

// anyMap widens viper's map[string]interface{} so Value sees one map type.
func anyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = widen(v)
	}
	return out
}

func widen(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return anyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = widen(e)
		}
		return out
	}
	return v
}
