package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is a single dataset row: field name to scalar value.
// Numbers decoded from JSON keep their original text as json.Number.
type Record map[string]any

// DecodeRecords parses a JSON array of objects. Anything else is a validation error.
func DecodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of records", ErrValidation)
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: record %d is not an object", ErrValidation, i)
		}
		records = append(records, Record(obj))
	}
	return records, nil
}

// FormatValue renders a scalar the way it is compared and labelled:
// 1 and "1" both become "1", null becomes "None".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(t)
	}
}
