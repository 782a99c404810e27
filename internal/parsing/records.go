package parsing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ParseError reports client-supplied metadata that is not a JSON object.
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ParseRecord flattens a JSON object, or an array of objects merged in
// order, into field values. Missing or null input yields an empty map.
func ParseRecord(raw []byte) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]string{}, nil
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, &ParseError{Message: "metadata must be an object or an array of objects", Cause: err}
		}
		out := map[string]string{}
		for _, item := range items {
			obj, ok := decodeObject(string(item))
			if !ok {
				return nil, &ParseError{Message: "metadata array may only contain objects"}
			}
			for k, v := range obj {
				out[k] = v
			}
		}
		return out, nil
	}

	obj, ok := decodeObject(string(raw))
	if !ok {
		return nil, &ParseError{Message: "metadata must be an object or an array of objects", Cause: errors.New("invalid JSON object")}
	}
	return obj, nil
}
