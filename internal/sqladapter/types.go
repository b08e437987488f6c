package sqladapter

import "github.com/dreamware/tinysql/internal/dberr"

// DataType names the dynamic type of a Value, mirroring
// original_source's sql::types::DataType enum.
type DataType int

const (
	TypeInteger DataType = iota
	TypeFloat
	TypeBoolean
	TypeString
)

func (d DataType) String() string {
	switch d {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a single SQL-facing scalar: at most one of the typed fields
// is meaningful, selected by Null/Kind the way original_source's
// sql::types::Value sum type does it in Rust (there, a tagged enum
// variant; here, a struct with a Kind discriminant, since Go has no sum
// types).
type Value struct {
	Null    bool
	Kind    DataType
	Boolean bool
	Integer int64
	Float   float64
	String  string
}

// NullValue is the Value every Go zero Value with Null unset is not:
// callers must construct it explicitly, since the zero Value means
// "integer 0", not "null".
func NullValue() Value { return Value{Null: true} }

// DataType reports v's dynamic type, or (_, false) if v is null (null
// has no type, per original_source's Value::datatype).
func (v Value) DataType() (DataType, bool) {
	if v.Null {
		return 0, false
	}
	return v.Kind, true
}

// Column describes one column of a table schema.
type Column struct {
	Name     string
	Type     DataType
	Primary  bool
	Nullable bool
}

// Schema describes a table: its name and ordered columns. Exactly one
// column must have Primary set.
type Schema struct {
	Name    string
	Columns []Column
}

// PrimaryKeyIndex returns the index of Schema's single primary-key
// column.
func (s Schema) PrimaryKeyIndex() (int, error) {
	idx := -1
	for i, col := range s.Columns {
		if col.Primary {
			if idx != -1 {
				return 0, dberr.Internal("table %q has more than one primary key column", s.Name)
			}
			idx = i
		}
	}
	if idx == -1 {
		return 0, dberr.Internal("table %q has no primary key column", s.Name)
	}
	return idx, nil
}

// Validate checks the structural invariants CreateTable enforces: at
// least one column, and exactly one primary key.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return dberr.Internal("table %q has no columns", s.Name)
	}
	_, err := s.PrimaryKeyIndex()
	return err
}

// Row is one SQL-facing record: one Value per Schema.Columns entry.
type Row []Value
