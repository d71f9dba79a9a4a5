package commons

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrFormat is returned when a payload cannot be decoded.
var ErrFormat = errors.New("malformed payload")

// Codec converts wire values to and from strings.
type Codec interface {
	Encode(v any) (string, error)
	Decode(data string, v any) error
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %T: %w", v, err)
	}
	return string(b), nil
}

func (JSONCodec) Decode(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return nil
}
