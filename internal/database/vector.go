package database

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Vector carries an embedding for a PostgreSQL pgvector column. It maps
// to and from the vector text literal, "[0.1,0.2,0.3]".
type Vector []float64

// NewVector copies floats into a Vector.
func NewVector(floats []float64) Vector {
	return append(Vector(nil), floats...)
}

// Dimension returns the number of elements.
func (v Vector) Dimension() int { return len(v) }

// String renders the pgvector text literal.
func (v Vector) String() string {
	buf := make([]byte, 0, len(v)*12+2)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, f, 'f', -1, 64)
	}
	buf = append(buf, ']')
	return string(buf)
}

// Value implements driver.Valuer. A nil vector maps to SQL NULL.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

// Scan implements sql.Scanner for the pgvector text format.
func (v *Vector) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}

	var raw string
	switch s := src.(type) {
	case string:
		raw = s
	case []byte:
		raw = string(s)
	default:
		return fmt.Errorf("cannot scan %T into Vector", src)
	}

	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return fmt.Errorf("malformed vector literal %q", raw)
	}
	raw = raw[1 : len(raw)-1]
	if raw == "" {
		*v = Vector{}
		return nil
	}

	out := make(Vector, 0, strings.Count(raw, ",")+1)
	for len(raw) > 0 {
		elem, rest, _ := strings.Cut(raw, ",")
		f, err := strconv.ParseFloat(strings.TrimSpace(elem), 64)
		if err != nil {
			return fmt.Errorf("vector element %d: %w", len(out), err)
		}
		out = append(out, f)
		raw = rest
	}
	*v = out
	return nil
}
