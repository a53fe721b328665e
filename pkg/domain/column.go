package domain

import (
	"fmt"
	"math"
	"strings"
)

// Column identifies one field of a fit parameter row.
type Column string

// Columns of a parameter row. p0/blo/bhi are user-editable inputs, res/dres/chi
// are written by the solver and fixed/shared are booleans.
const (
	ColumnP0     Column = "p0"
	ColumnLo     Column = "blo"
	ColumnHi     Column = "bhi"
	ColumnRes    Column = "res"
	ColumnDRes   Column = "dres"
	ColumnChi    Column = "chi"
	ColumnFixed  Column = "fixed"
	ColumnShared Column = "shared"
)

// Columns lists every column in display order.
var Columns = []Column{ColumnP0, ColumnLo, ColumnHi, ColumnRes, ColumnDRes, ColumnChi, ColumnFixed, ColumnShared}

// InputColumns lists the user-editable numeric columns.
var InputColumns = []Column{ColumnP0, ColumnLo, ColumnHi}

// OutputColumns lists the solver-written numeric columns.
var OutputColumns = []Column{ColumnRes, ColumnDRes, ColumnChi}

// ParseColumn resolves a column name.
func ParseColumn(name string) (Column, error) {
	c := Column(strings.ToLower(strings.TrimSpace(name)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown column %q", name)
	}
	return c, nil
}

// Valid reports whether c is one of the known columns.
func (c Column) Valid() bool {
	switch c {
	case ColumnP0, ColumnLo, ColumnHi, ColumnRes, ColumnDRes, ColumnChi, ColumnFixed, ColumnShared:
		return true
	}
	return false
}

// Numeric reports whether the column carries a float value.
func (c Column) Numeric() bool {
	return c.Valid() && !c.Flag()
}

// Flag reports whether the column carries a boolean value.
func (c Column) Flag() bool {
	return c == ColumnFixed || c == ColumnShared
}

// Editable reports whether the user may write the column.
func (c Column) Editable() bool {
	switch c {
	case ColumnP0, ColumnLo, ColumnHi, ColumnFixed, ColumnShared:
		return true
	}
	return false
}

// Output reports whether the column is written by the solver only.
func (c Column) Output() bool {
	return c == ColumnRes || c == ColumnDRes || c == ColumnChi
}

// Value is the content of one cell. Number is meaningful for numeric columns,
// Flag for boolean columns. An unset number is NaN.
type Value struct {
	Number float64
	Flag   bool
}

// Num wraps a float as a Value.
func Num(v float64) Value { return Value{Number: v} }

// Bool wraps a flag as a Value.
func Bool(b bool) Value { return Value{Flag: b} }

// Unset returns the NaN number value.
func Unset() Value { return Value{Number: math.NaN()} }

// IsUnset reports whether the number is NaN.
func (v Value) IsUnset() bool { return math.IsNaN(v.Number) }

// Equal compares two values for the given column. NaN equals NaN and numbers
// compare bit for bit.
func (v Value) Equal(col Column, other Value) bool {
	if col.Flag() {
		return v.Flag == other.Flag
	}
	if v.IsUnset() || other.IsUnset() {
		return v.IsUnset() && other.IsUnset()
	}
	return math.Float64bits(v.Number) == math.Float64bits(other.Number)
}
