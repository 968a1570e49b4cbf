package decoder

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Decoder 把原始配置内容解码为 map/slice 组成的数据
type Decoder interface {
	Decode(data []byte) (any, error)
}

// DecoderForFile 按扩展名选择 Decoder
func DecoderForFile(filename string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return JsonDecoder{}, nil
	case ".yaml", ".yml":
		return YamlDecoder{}, nil
	case ".toml":
		return TomlDecoder{}, nil
	case ".ini":
		return IniDecoder{}, nil
	}
	return nil, errors.Errorf("unsupported config file [%s]", filename)
}
