// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package tabular

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// CellKind identifies which variant a Cell holds.
type CellKind uint8

const (
	CellNull CellKind = iota
	CellNumber
	CellText
)

// String returns the kind name.
func (k CellKind) String() string {
	switch k {
	case CellNumber:
		return "number"
	case CellText:
		return "text"
	default:
		return "null"
	}
}

// Cell is a coerced CSV value: null, a number, or trimmed text.
type Cell struct {
	kind CellKind
	num  float64
	text string
}

// Null returns the null cell.
func Null() Cell { return Cell{} }

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{kind: CellNumber, num: f} }

// Text returns a text cell. The value is stored as given.
func Text(s string) Cell { return Cell{kind: CellText, text: s} }

// Coerce applies the cell transform to a raw field.
// Blank becomes null, fully numeric text becomes a number, anything else is trimmed text.
func Coerce(raw string) Cell {
	if raw == "" {
		return Null()
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		// Whitespace-only is not numeric and trims to empty text.
		return Text("")
	}
	if f, ok := parseNumber(trimmed); ok {
		return Number(f)
	}
	return Text(trimmed)
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (c Cell) Kind() CellKind { return c.kind }
func (c Cell) IsNull() bool   { return c.kind == CellNull }

// Float returns the numeric value; ok is false for other kinds.
func (c Cell) Float() (float64, bool) { return c.num, c.kind == CellNumber }

// Str returns the text value; ok is false for other kinds.
func (c Cell) Str() (string, bool) { return c.text, c.kind == CellText }

// Value returns nil, float64 or string, suitable as a SQL argument.
func (c Cell) Value() any {
	switch c.kind {
	case CellNumber:
		return c.num
	case CellText:
		return c.text
	default:
		return nil
	}
}

// String renders the cell as it would appear in a CSV field.
func (c Cell) String() string {
	switch c.kind {
	case CellNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	case CellText:
		return c.text
	default:
		return ""
	}
}

// MarshalJSON encodes the cell as null, a number, or a string.
func (c Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value())
}

// Field is one named cell in a row.
type Field struct {
	Column string
	Value  Cell
}

// Row is an ordered list of fields in header order.
type Row []Field

// Get returns the cell under column.
func (r Row) Get(column string) (Cell, bool) {
	for _, f := range r {
		if f.Column == column {
			return f.Value, true
		}
	}
	return Cell{}, false
}

// With returns a copy of the row with column set to value, appended when absent.
func (r Row) With(column string, value Cell) Row {
	out := make(Row, 0, len(r)+1)
	replaced := false
	for _, f := range r {
		if f.Column == column {
			f.Value = value
			replaced = true
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, Field{Column: column, Value: value})
	}
	return out
}

// Columns returns the column names in row order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Column
	}
	return cols
}

// MarshalJSON encodes the row as a JSON object preserving column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Column)
		if err != nil {
			return nil, err
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
