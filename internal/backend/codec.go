package backend

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// jsonArg binds a value as its JSON text.
type jsonArg struct{ v any }

func (a jsonArg) Value() (driver.Value, error) {
	b, err := json.Marshal(a.v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb argument: %w", err)
	}
	return string(b), nil
}

// jsonValue decodes a json/jsonb column into native maps and slices.
type jsonValue struct{ v any }

func (j *jsonValue) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		j.v = nil
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(raw) == 0 {
		j.v = nil
		return nil
	}
	if err := json.Unmarshal(raw, &j.v); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}
