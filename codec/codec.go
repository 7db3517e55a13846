// Package codec converts typed records to and from bus payloads and wraps
// bus channels so that handlers work with records instead of bytes.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/sensorfusion/errors"
)

// Codec encodes and decodes values of one record type.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// Msgpack is the bus codec. Record types tag themselves msgpack:",as_array"
// so the encoding is positional.
type Msgpack[T any] struct{}

var _ Codec[struct{}] = Msgpack[struct{}]{}

// Encode implements Codec.
func (Msgpack[T]) Encode(v T) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrEncodingFailed, err),
			"codec", "Encode", fmt.Sprintf("msgpack encode %T", v))
	}
	return b, nil
}

// Decode implements Codec.
func (Msgpack[T]) Decode(data []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"codec", "Decode", fmt.Sprintf("msgpack decode %T", v))
	}
	return v, nil
}

// JSON decodes JSON objects, as produced by the tablet frame extractor.
type JSON[T any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

// Encode implements Codec.
func (JSON[T]) Encode(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrEncodingFailed, err),
			"codec", "Encode", fmt.Sprintf("json encode %T", v))
	}
	return b, nil
}

// Decode implements Codec.
func (JSON[T]) Decode(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"codec", "Decode", fmt.Sprintf("json decode %T", v))
	}
	return v, nil
}
