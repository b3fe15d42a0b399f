package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONText stores a JSON document as text so the same column works for
// SQLite TEXT and Postgres JSONB under the simple query protocol.
type JSONText json.RawMessage

// NewJSONText marshals v into a JSONText.
func NewJSONText(v any) (JSONText, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONText(raw), nil
}

func (j *JSONText) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case string:
		*j = JSONText(append([]byte(nil), v...))
		return nil
	case []byte:
		*j = JSONText(append([]byte(nil), v...))
		return nil
	default:
		return fmt.Errorf("JSONText: unsupported Scan type %T", src)
	}
}

func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("JSONText: invalid json")
	}
	return string(j), nil
}

// Decode unmarshals the stored document into v.
func (j JSONText) Decode(v any) error {
	if len(j) == 0 {
		return fmt.Errorf("JSONText: empty document")
	}
	return json.Unmarshal(j, v)
}

func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}
