package cfg

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hatlonely/crudx/cfg/decoder"
	"github.com/hatlonely/crudx/cfg/storage"
	"github.com/hatlonely/crudx/cfg/validator"
	"github.com/hatlonely/crudx/log"
	"github.com/pkg/errors"
)

// Config 文件配置，Sub 返回的子配置与根配置共享数据与监听
type Config struct {
	root *root
	key  string
}

type root struct {
	filename string
	decoder  decoder.Decoder
	logger   log.Logger

	mu       sync.RWMutex
	storage  *storage.Storage
	handlers []func() error

	watchOnce sync.Once
	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	closeErr  error
}

// NewConfig 读取配置文件，按扩展名选择 json/yaml/toml/ini 解码
func NewConfig(filename string) (*Config, error) {
	d, err := decoder.DecoderForFile(filename)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid path [%s]", filename)
	}

	r := &root{filename: abs, decoder: d, logger: log.Default()}
	s, err := r.load()
	if err != nil {
		return nil, err
	}
	r.storage = s
	return &Config{root: r}, nil
}

// NewConfigWithData 用内存数据创建配置，不支持 Watch
func NewConfigWithData(data any) *Config {
	return &Config{root: &root{storage: storage.NewStorage(data), logger: log.Default()}}
}

func (r *root) load() (*storage.Storage, error) {
	buf, err := os.ReadFile(r.filename)
	if err != nil {
		return nil, errors.Wrapf(err, "read [%s] failed", r.filename)
	}
	data, err := r.decoder.Decode(buf)
	if err != nil {
		return nil, errors.WithMessagef(err, "decode [%s] failed", r.filename)
	}
	return storage.NewStorage(data), nil
}

func (c *Config) SetLogger(logger log.Logger) {
	if logger != nil {
		c.root.logger = logger
	}
}

func (c *Config) Sub(key string) *Config {
	if key == "" {
		return c
	}
	if c.key != "" {
		key = c.key + "." + key
	}
	return &Config{root: c.root, key: key}
}

func (c *Config) Storage() *storage.Storage {
	c.root.mu.RLock()
	defer c.root.mu.RUnlock()
	return c.root.storage.Sub(c.key)
}

// ConvertTo 先填充默认值，再用配置覆盖，最后校验
// 配置中显式给出的零值（如 false）不会被默认值替换
func (c *Config) ConvertTo(object any) error {
	if err := c.Storage().ConvertTo(object); err != nil {
		return errors.WithMessagef(err, "convert [%s] failed", c.key)
	}
	if err := validator.ValidateStruct(object); err != nil {
		return errors.Wrapf(err, "validate [%s] failed", c.key)
	}
	return nil
}

// OnChange 注册变更回调，回调收到的是注册时的 Config（子配置保持其 key）
func (c *Config) OnChange(fn func(*Config) error) {
	c.root.mu.Lock()
	defer c.root.mu.Unlock()
	c.root.handlers = append(c.root.handlers, func() error { return fn(c) })
}

// Watch 监听文件写入并重新加载，加载失败时保留旧配置
func (c *Config) Watch() error {
	r := c.root
	if r.filename == "" {
		return nil
	}

	var err error
	r.watchOnce.Do(func() {
		var watcher *fsnotify.Watcher
		if watcher, err = fsnotify.NewWatcher(); err != nil {
			err = errors.Wrap(err, "create watcher failed")
			return
		}
		if err = watcher.Add(filepath.Dir(r.filename)); err != nil {
			_ = watcher.Close()
			err = errors.Wrap(err, "watch directory failed")
			return
		}
		r.watcher = watcher
		go r.loop()
	})
	return err
}

func (r *root) loop() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.filename || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.reload()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("config watcher error", "file", r.filename, "error", err)
		}
	}
}

func (r *root) reload() {
	s, err := r.load()
	if err != nil {
		r.logger.Warn("reload config failed", "file", r.filename, "error", err)
		return
	}

	r.mu.Lock()
	r.storage = s
	handlers := append([]func() error(nil), r.handlers...)
	r.mu.Unlock()

	for _, h := range handlers {
		if err := h(); err != nil {
			r.logger.Warn("config change handler failed", "file", r.filename, "error", err)
		}
	}
}

func (c *Config) Close() error {
	r := c.root
	r.closeOnce.Do(func() {
		if r.watcher != nil {
			r.closeErr = r.watcher.Close()
		}
	})
	return r.closeErr
}
