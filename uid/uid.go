package uid

import (
	"github.com/hatlonely/crudx/ref"
	"github.com/hatlonely/crudx/uid/intgen"
	"github.com/hatlonely/crudx/uid/strgen"
	"github.com/pkg/errors"
)

// NewGeneratorWithOptions 创建 intgen.IntGenerator 或 strgen.StrGenerator
func NewGeneratorWithOptions(options *ref.TypeOptions) (any, error) {
	if options == nil {
		return nil, errors.New("generator options is nil")
	}
	obj, err := ref.New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return nil, err
	}
	switch obj.(type) {
	case intgen.IntGenerator, strgen.StrGenerator:
		return obj, nil
	}
	return nil, errors.Errorf("%T is neither an IntGenerator nor a StrGenerator", obj)
}
