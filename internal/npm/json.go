package npm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// JSONObject is a readonly JSON object that remembers key order. The alias
// table is decoded through it because alias iteration order is significant.
type JSONObject struct {
	keys   []string
	values map[string]any
}

func (obj *JSONObject) Len() int {
	return len(obj.keys)
}

func (obj *JSONObject) Keys() []string {
	return obj.keys
}

func (obj *JSONObject) Get(key string) (any, bool) {
	v, ok := obj.values[key]
	return v, ok
}

func (obj *JSONObject) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	t, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expect JSON object open with '{'")
	}

	obj.keys = nil
	obj.values = make(map[string]any)
	for dec.More() {
		t, err = dec.Token()
		if err != nil {
			return err
		}
		key, ok := t.(string)
		if !ok {
			return fmt.Errorf("JSON key must be a string, got %T", t)
		}
		var value json.RawMessage
		if err = dec.Decode(&value); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		var v any
		if err = json.Unmarshal(value, &v); err != nil {
			return err
		}
		obj.keys = append(obj.keys, key)
		obj.values[key] = v
	}

	t, err = dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := t.(json.Delim); !ok || delim != '}' {
		return fmt.Errorf("expect JSON object close with '}'")
	}
	return nil
}
