package jsoncodec

import (
	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

// numberConfig keeps JSON numbers as json.Number so opaque identifiers such as
// row ids survive decoding without float rounding.
var numberConfig = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// UnmarshalNumber decodes data like Unmarshal but leaves numbers in
// interface values as json.Number.
func UnmarshalNumber(data []byte, v any) error {
	return numberConfig.Unmarshal(data, v)
}

// Convert re-encodes src into dst, typically to turn a generic map payload
// into a typed struct.
func Convert(src, dst any) error {
	data, err := defaultConfig.Marshal(src)
	if err != nil {
		return err
	}
	return numberConfig.Unmarshal(data, dst)
}
