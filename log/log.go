package log

import (
	"sync/atomic"

	"github.com/hatlonely/crudx/log/logger"
	"github.com/hatlonely/crudx/ref"
)

type Logger = logger.Logger

func init() {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("init default logger failed: " + err.Error())
	}
	defaultLogger.Store(&holder{l})
}

type holder struct{ Logger }

var defaultLogger atomic.Pointer[holder]

// Default 返回全局默认日志器，组件未配置日志时使用
func Default() Logger {
	return defaultLogger.Load().Logger
}

func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(&holder{l})
	}
}

// NewLoggerWithOptions 按 TypeOptions 创建日志器，options 为空时返回默认日志器
func NewLoggerWithOptions(options *ref.TypeOptions) (Logger, error) {
	if options == nil || options.Type == "" {
		return Default(), nil
	}
	return ref.NewWithTypeOptions[Logger](options)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
func (discardWriter) Close() error                { return nil }

// Discard 丢弃所有输出的日志器
func Discard() Logger {
	l, _ := logger.NewSLog(discardWriter{}, &logger.SLogOptions{Level: "error"})
	return l
}
