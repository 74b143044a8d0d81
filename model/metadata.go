package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/siherrmann/pano/helper"
)

// Metadata is a free-form JSON object. It carries edge properties in
// investigation files and the JSONB columns of the archive.
type Metadata map[string]any

// Value stores nil as an empty object.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, helper.NewError("encode metadata", err)
	}
	return b, nil
}

// Scan reads a JSONB column. NULL becomes an empty object.
func (m *Metadata) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return helper.NewError("scan metadata", fmt.Errorf("unsupported column type %T", value))
	}

	decoded := Metadata{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return helper.NewError("decode metadata", err)
	}
	*m = decoded
	return nil
}

// Clone returns a shallow copy. Nil stays nil.
func (m Metadata) Clone() Metadata {
	return maps.Clone(m)
}
