package mqtt311

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// NormalizePayload converts an application-level payload into the byte
// sequence handed to the transport. Accepted shapes, in priority order:
//
//   - []byte: passed through unchanged, without copying
//   - string: passed through as its UTF-8 bytes
//   - json.RawMessage: viewed as bytes without copying
//   - nil: an empty payload
//   - maps, structs, slices and pointers to them: marshalled to JSON text
//
// Any other shape fails with ErrInvalidPayload. Validation is
// synchronous; the caller sees the error before any transport call is
// made.
func NormalizePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case json.RawMessage:
		return p, nil
	}

	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidPayload, payload)
	}
}
