package database

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSONB maps a jsonb column onto a Go value. It scans the raw bytes the
// driver hands back and marshals Data when used as a bind parameter.
type JSONB[T any] struct {
	Data T
}

func (j *JSONB[T]) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("jsonb scan: expected []byte, got %T", src)
	}
	return errors.Wrap(json.Unmarshal(b, &j.Data), "jsonb scan")
}

func (j JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}
