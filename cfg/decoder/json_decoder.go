package decoder

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

type JsonDecoder struct{}

func (JsonDecoder) Decode(data []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "json decode failed")
	}
	return normalizeJSON(v), nil
}

// normalizeJSON 把 json.Number 转为 int64 或 float64
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeJSON(e)
		}
	case []any:
		for i, e := range x {
			x[i] = normalizeJSON(e)
		}
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	}
	return v
}
