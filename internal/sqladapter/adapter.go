package sqladapter

import (
	"bytes"
	"encoding/gob"

	"github.com/dreamware/tinysql/internal/codec"
	"github.com/dreamware/tinysql/internal/dberr"
	"github.com/dreamware/tinysql/internal/mvcc"
)

// Key family discriminants for the SQL-facing layer, carried in the
// same raw-key space mvcc.Transaction reads and writes: 0x00 for
// Table(name), 0x01 for Row(table, pk).
const (
	tagTable byte = 0x00
	tagRow   byte = 0x01
)

func tableKey(name string) []byte {
	buf := make([]byte, 0, 1+len(name)+2)
	buf = append(buf, tagTable)
	buf = append(buf, codec.EncodeBytes([]byte(name))...)
	return buf
}

func rowKeyPrefix(table string) []byte {
	buf := make([]byte, 0, 1+len(table)+2)
	buf = append(buf, tagRow)
	buf = append(buf, codec.EncodeBytes([]byte(table))...)
	return buf
}

func rowKey(table string, pk Value) ([]byte, error) {
	pkBytes, err := encodeValueKey(pk)
	if err != nil {
		return nil, err
	}
	buf := append([]byte{}, rowKeyPrefix(table)...)
	buf = append(buf, pkBytes...)
	return buf, nil
}

// encodeValueKey order-preservingly encodes a single Value for use as
// (part of) a Row key. A null reaches here only when the primary-key
// column is declared Nullable (neither Schema.Validate nor CreateRow
// rejects that combination); it is rejected with an Internal error.
func encodeValueKey(v Value) ([]byte, error) {
	kind, ok := v.DataType()
	if !ok {
		return nil, dberr.Internal("null value cannot be used as a primary key")
	}
	buf := []byte{byte(kind)}
	switch kind {
	case TypeInteger:
		return append(buf, codec.EncodeInt64(v.Integer)...), nil
	case TypeFloat:
		return append(buf, codec.EncodeFloat64(v.Float)...), nil
	case TypeBoolean:
		b := byte(0)
		if v.Boolean {
			b = 1
		}
		return append(buf, b), nil
	case TypeString:
		return append(buf, codec.EncodeBytes([]byte(v.String))...), nil
	default:
		return nil, dberr.Internal("unknown data type %d", kind)
	}
}

// Engine opens transactions against an underlying *mvcc.MVCC.
type Engine struct {
	mvcc *mvcc.MVCC
}

// NewEngine wraps m with the SQL-facing table/row adapter.
func NewEngine(m *mvcc.MVCC) *Engine {
	return &Engine{mvcc: m}
}

// Begin starts a new adapter transaction.
func (e *Engine) Begin() (*Transaction, error) {
	txn, err := e.mvcc.Begin()
	if err != nil {
		return nil, err
	}
	return &Transaction{txn: txn}, nil
}

// Transaction is the SQL-facing transaction handle: CreateTable,
// GetTable, CreateRow, and ScanTable all run against it, delegating to
// the underlying mvcc.Transaction for storage.
type Transaction struct {
	txn *mvcc.Transaction
}

// RawGet forwards directly to the underlying MVCC transaction, bypassing
// the Table/Row key families. Exposed for cmd/sqldb's lower-level
// get/set/delete commands, which operate on arbitrary byte keys rather
// than rows.
func (t *Transaction) RawGet(key []byte) ([]byte, error) { return t.txn.Get(key) }

// RawSet is the Set counterpart to RawGet.
func (t *Transaction) RawSet(key, value []byte) error { return t.txn.Set(key, value) }

// RawDelete is the Delete counterpart to RawGet.
func (t *Transaction) RawDelete(key []byte) error { return t.txn.Delete(key) }

// Commit forwards to the underlying MVCC transaction.
func (t *Transaction) Commit() error { return t.txn.Commit() }

// Rollback forwards to the underlying MVCC transaction.
func (t *Transaction) Rollback() error { return t.txn.Rollback() }

// CreateTable registers a new table schema. It fails if a table with
// the same name already exists, or if the schema is structurally
// invalid (no columns, or not exactly one primary key column).
func (t *Transaction) CreateTable(schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	existing, err := t.GetTable(schema.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return dberr.Internal("table %q already exists", schema.Name)
	}

	encoded, err := gobEncode(schema)
	if err != nil {
		return dberr.InternalWrap(err, "encode schema for table %q", schema.Name)
	}
	return t.txn.Set(tableKey(schema.Name), encoded)
}

// GetTable returns the schema for name, or nil if no such table exists.
func (t *Transaction) GetTable(name string) (*Schema, error) {
	raw, err := t.txn.Get(tableKey(name))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var schema Schema
	if err := gobDecode(raw, &schema); err != nil {
		return nil, dberr.InternalWrap(err, "decode schema for table %q", name)
	}
	return &schema, nil
}

// CreateRow inserts row into table, keyed by its primary-key column.
// The row's column count and each value's dynamic type must agree with
// the table's schema.
func (t *Transaction) CreateRow(table string, row Row) error {
	schema, err := t.GetTable(table)
	if err != nil {
		return err
	}
	if schema == nil {
		return dberr.Internal("table %q does not exist", table)
	}
	if len(row) != len(schema.Columns) {
		return dberr.Internal("table %q expects %d columns, row has %d", table, len(schema.Columns), len(row))
	}
	for i, col := range schema.Columns {
		v := row[i]
		kind, ok := v.DataType()
		if !ok {
			if !col.Nullable {
				return dberr.Internal("column %q of table %q is not nullable", col.Name, table)
			}
			continue
		}
		if kind != col.Type {
			return dberr.Internal("column %q of table %q expects %s, got %s", col.Name, table, col.Type, kind)
		}
	}

	pkIdx, err := schema.PrimaryKeyIndex()
	if err != nil {
		return err
	}
	key, err := rowKey(table, row[pkIdx])
	if err != nil {
		return err
	}
	encoded, err := gobEncode(row)
	if err != nil {
		return dberr.InternalWrap(err, "encode row for table %q", table)
	}
	return t.txn.Set(key, encoded)
}

// ScanTable returns every row of table in primary-key order.
func (t *Transaction) ScanTable(table string) ([]Row, error) {
	schema, err := t.GetTable(table)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, dberr.Internal("table %q does not exist", table)
	}

	results, err := t.txn.ScanPrefix(rowKeyPrefix(table))
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		var row Row
		if err := gobDecode(r.Value, &row); err != nil {
			return nil, dberr.InternalWrap(err, "decode row for table %q", table)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
