package writer

import (
	"io"

	"github.com/hatlonely/crudx/ref"
	"github.com/pkg/errors"
)

type MultiWriterOptions struct {
	Writers []*ref.TypeOptions `cfg:"writers" validate:"required,min=1"`
}

// MultiWriter 写入所有子 Writer，任意一个失败即返回
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriterWithOptions(options *MultiWriterOptions) (*MultiWriter, error) {
	if options == nil || len(options.Writers) == 0 {
		return nil, errors.New("at least one writer is required")
	}
	writers := make([]Writer, 0, len(options.Writers))
	for i, opt := range options.Writers {
		w, err := NewWriterWithOptions(opt)
		if err != nil {
			for _, created := range writers {
				_ = created.Close()
			}
			return nil, errors.WithMessagef(err, "create writer %d failed", i)
		}
		writers = append(writers, w)
	}
	return NewMultiWriter(writers...), nil
}

func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	for i, w := range m.writers {
		n, err := w.Write(p)
		if err != nil {
			return n, errors.Wrapf(err, "writer %d failed", i)
		}
		if n != len(p) {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}

func (m *MultiWriter) Close() error {
	var lastErr error
	for i, w := range m.writers {
		if err := w.Close(); err != nil {
			lastErr = errors.Wrapf(err, "close writer %d failed", i)
		}
	}
	return lastErr
}
