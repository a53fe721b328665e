package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// SnapshotVersion is the current snapshot layout version.
const SnapshotVersion = 1

// Float is a float64 whose JSON form survives NaN and infinities: NaN encodes
// as null, infinities as the strings "inf" and "-inf".
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte("null"), nil
	case math.IsInf(v, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = Float(math.NaN())
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "inf", "+inf":
			*f = Float(math.Inf(1))
		case "-inf":
			*f = Float(math.Inf(-1))
		case "nan", "":
			*f = Float(math.NaN())
		default:
			return fmt.Errorf("invalid float %q", s)
		}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// ParameterRow captures every column of one parameter.
type ParameterRow struct {
	Name   string `json:"name" yaml:"name"`
	P0     Float  `json:"p0" yaml:"p0"`
	Lo     Float  `json:"blo" yaml:"blo"`
	Hi     Float  `json:"bhi" yaml:"bhi"`
	Res    Float  `json:"res" yaml:"res"`
	DRes   Float  `json:"dres" yaml:"dres"`
	Chi    Float  `json:"chi" yaml:"chi"`
	Fixed  bool   `json:"fixed" yaml:"fixed"`
	Shared bool   `json:"shared" yaml:"shared"`
}

// Get returns the value of a column.
func (p ParameterRow) Get(col Column) (Value, error) {
	switch col {
	case ColumnP0:
		return Num(float64(p.P0)), nil
	case ColumnLo:
		return Num(float64(p.Lo)), nil
	case ColumnHi:
		return Num(float64(p.Hi)), nil
	case ColumnRes:
		return Num(float64(p.Res)), nil
	case ColumnDRes:
		return Num(float64(p.DRes)), nil
	case ColumnChi:
		return Num(float64(p.Chi)), nil
	case ColumnFixed:
		return Bool(p.Fixed), nil
	case ColumnShared:
		return Bool(p.Shared), nil
	}
	return Value{}, fmt.Errorf("unknown column %q", col)
}

// RunSnapshot holds the parameter rows of one run, sorted by name.
type RunSnapshot struct {
	Key        RunKey         `json:"key" yaml:"key"`
	Parameters []ParameterRow `json:"parameters" yaml:"parameters"`
}

// Parameter finds a row by name.
func (r RunSnapshot) Parameter(name string) (ParameterRow, bool) {
	for _, p := range r.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterRow{}, false
}

// Snapshot is the serialisable state of a fit session: enough to rebuild every
// parameter set and the shared registry without running the solver.
type Snapshot struct {
	Version    int           `json:"version" yaml:"version"`
	SavedAt    time.Time     `json:"saved_at" yaml:"saved_at"`
	Routine    string        `json:"routine,omitempty" yaml:"routine,omitempty"`
	Function   string        `json:"fit_function" yaml:"fit_function"`
	Components int           `json:"components" yaml:"components"`
	XLo        string        `json:"xlo" yaml:"xlo"`
	XHi        string        `json:"xhi" yaml:"xhi"`
	ModifyAll  bool          `json:"modify_all" yaml:"modify_all"`
	AsymMode   string        `json:"asym_mode,omitempty" yaml:"asym_mode,omitempty"`
	GlobalChi  Float         `json:"global_chi" yaml:"global_chi"`
	Runs       []RunSnapshot `json:"runs" yaml:"runs"`
}

// ListRuns implements RuleView.
func (s Snapshot) ListRuns() []RunSnapshot {
	out := make([]RunSnapshot, len(s.Runs))
	copy(out, s.Runs)
	return out
}

// FindRun implements RuleView.
func (s Snapshot) FindRun(key string) (RunSnapshot, bool) {
	for _, r := range s.Runs {
		if r.Key.String() == key {
			return r, true
		}
	}
	return RunSnapshot{}, false
}

// SharedNames implements RuleView. A name is shared when any run marks it so.
func (s Snapshot) SharedNames() []string {
	seen := make(map[string]struct{})
	for _, r := range s.Runs {
		for _, p := range r.Parameters {
			if p.Shared {
				seen[p.Name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Runs = make([]RunSnapshot, len(s.Runs))
	for i, r := range s.Runs {
		cp := r
		cp.Key.Merged = append([]int(nil), r.Key.Merged...)
		cp.Parameters = append([]ParameterRow(nil), r.Parameters...)
		out.Runs[i] = cp
	}
	return out
}
