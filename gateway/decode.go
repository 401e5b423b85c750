package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// decodeList turns a gateway reply into a list of field bags. The service answers
// with a JSON list, a JSON string holding a list, or either of those wrapped in
// an ASMX {"d": ...} envelope.
func decodeList(body []byte) ([]map[string]any, error) {
	v, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}

	for depth := 0; depth < 3; depth++ {
		switch t := v.(type) {
		case string:
			if v, err = decodeJSON([]byte(t)); err != nil {
				return nil, err
			}
			continue
		case map[string]any:
			inner, ok := t["d"]
			if !ok {
				return nil, errors.New("object reply without list")
			}
			v = inner
			continue
		case []any:
			return toRecords(t), nil
		case nil:
			return nil, errors.New("null reply")
		default:
			return nil, fmt.Errorf("unexpected %T reply", v)
		}
	}
	return nil, errors.New("reply nested too deeply")
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func toRecords(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			// Non-object entries carry no fields; the normalizer defaults them.
			rec = map[string]any{}
		}
		out = append(out, rec)
	}
	return out
}
