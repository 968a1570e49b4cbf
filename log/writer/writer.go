package writer

import (
	"io"

	"github.com/hatlonely/crudx/ref"
)

func init() {
	ref.MustRegisterT[ConsoleWriter](NewConsoleWriterWithOptions)
	ref.MustRegisterT[FileWriter](NewFileWriterWithOptions)
	ref.MustRegisterT[MultiWriter](NewMultiWriterWithOptions)
}

// Writer 日志输出
type Writer interface {
	io.Writer
	io.Closer
}

func NewWriterWithOptions(options *ref.TypeOptions) (Writer, error) {
	return ref.NewWithTypeOptions[Writer](options)
}
