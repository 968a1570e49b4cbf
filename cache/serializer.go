package cache

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type Serializer[T any] interface {
	Serialize(from T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

// NewSerializer format 为 msgpack 或 json，为空时使用 msgpack
func NewSerializer[T any](format string) (Serializer[T], error) {
	switch format {
	case "", "msgpack":
		return MsgPackSerializer[T]{}, nil
	case "json":
		return JSONSerializer[T]{}, nil
	}
	return nil, errors.Errorf("unsupported serializer [%s]", format)
}

type MsgPackSerializer[T any] struct{}

func (MsgPackSerializer[T]) Serialize(from T) ([]byte, error) {
	return msgpack.Marshal(from)
}

func (MsgPackSerializer[T]) Deserialize(data []byte) (T, error) {
	var result T
	err := msgpack.Unmarshal(data, &result)
	return result, err
}

type JSONSerializer[T any] struct{}

func (JSONSerializer[T]) Serialize(from T) ([]byte, error) {
	return json.Marshal(from)
}

func (JSONSerializer[T]) Deserialize(data []byte) (T, error) {
	var result T
	err := json.Unmarshal(data, &result)
	return result, err
}
