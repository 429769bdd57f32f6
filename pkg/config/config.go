package config

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load 约定：config/{service}.yaml，环境变量覆盖
//
//	WALLET_SERVICE_HTTP_ADDR 覆盖 http.addr
//	WALLET_SERVICE_MYSQL_DSN 覆盖 mysql.dsn
func Load(service string, out interface{}, paths ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(service, "-", "_")))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	return v, nil
}

// Watcher 热更新：文件变更后重新 Unmarshal，并通知订阅方
type Watcher struct {
	mu       sync.Mutex
	v        *viper.Viper
	out      interface{}
	onChange []func()
	onError  func(error)
}

// LoadAndWatch 加载后监听文件变更，热更新到 out
func LoadAndWatch(service string, out interface{}, paths ...string) (*Watcher, error) {
	v, err := Load(service, out, paths...)
	if err != nil {
		return nil, err
	}
	w := &Watcher{v: v, out: out}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		w.reload()
	})
	v.WatchConfig()
	return w, nil
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.v.Unmarshal(w.out); err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	for _, fn := range w.onChange {
		fn()
	}
}

// OnChange 注册热更新回调，回调在 reload 的锁内串行执行
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	w.onChange = append(w.onChange, fn)
	w.mu.Unlock()
}

func (w *Watcher) OnError(fn func(error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

func (w *Watcher) File() string { return w.v.ConfigFileUsed() }
