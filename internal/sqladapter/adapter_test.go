package sqladapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tinysql/internal/mvcc"
	"github.com/dreamware/tinysql/internal/storage"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(mvcc.New(storage.NewMemoryEngine()))
}

func usersSchema() Schema {
	return Schema{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: TypeInteger, Primary: true},
			{Name: "name", Type: TypeString, Nullable: true},
		},
	}
}

func TestCreateTableRejectsDuplicate(t *testing.T) {
	e := newEngine(t)
	txn, err := e.Begin()
	require.NoError(t, err)

	require.NoError(t, txn.CreateTable(usersSchema()))
	err = txn.CreateTable(usersSchema())
	require.Error(t, err)
	require.NoError(t, txn.Rollback())
}

func TestCreateTableRejectsInvalidSchema(t *testing.T) {
	e := newEngine(t)
	txn, err := e.Begin()
	require.NoError(t, err)

	err = txn.CreateTable(Schema{Name: "empty"})
	require.Error(t, err)

	err = txn.CreateTable(Schema{
		Name: "no_pk",
		Columns: []Column{
			{Name: "a", Type: TypeInteger},
		},
	})
	require.Error(t, err)

	err = txn.CreateTable(Schema{
		Name: "two_pks",
		Columns: []Column{
			{Name: "a", Type: TypeInteger, Primary: true},
			{Name: "b", Type: TypeInteger, Primary: true},
		},
	})
	require.Error(t, err)

	require.NoError(t, txn.Rollback())
}

func TestCreateRowRejectsMismatch(t *testing.T) {
	e := newEngine(t)
	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.CreateTable(usersSchema()))

	err = txn.CreateRow("users", Row{{Kind: TypeInteger, Integer: 1}})
	require.Error(t, err, "wrong column count must be rejected")

	err = txn.CreateRow("users", Row{
		{Kind: TypeString, String: "not-an-int"},
		{Kind: TypeString, String: "bob"},
	})
	require.Error(t, err, "wrong dynamic type must be rejected")

	require.NoError(t, txn.Rollback())
}

func TestScanTablePrimaryKeyOrder(t *testing.T) {
	e := newEngine(t)
	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.CreateTable(usersSchema()))

	for _, id := range []int64{30, 10, 20} {
		require.NoError(t, txn.CreateRow("users", Row{
			{Kind: TypeInteger, Integer: id},
			{Kind: TypeString, String: "name"},
		}))
	}

	rows, err := txn.ScanTable("users")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(10), rows[0][0].Integer)
	assert.Equal(t, int64(20), rows[1][0].Integer)
	assert.Equal(t, int64(30), rows[2][0].Integer)

	require.NoError(t, txn.Commit())
}

func TestCreateRowAllowsNullableColumn(t *testing.T) {
	e := newEngine(t)
	txn, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.CreateTable(usersSchema()))

	require.NoError(t, txn.CreateRow("users", Row{
		{Kind: TypeInteger, Integer: 1},
		NullValue(),
	}))

	rows, err := txn.ScanTable("users")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0][1].Null)

	require.NoError(t, txn.Commit())
}

func TestGetTableMissing(t *testing.T) {
	e := newEngine(t)
	txn, err := e.Begin()
	require.NoError(t, err)

	schema, err := txn.GetTable("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, schema)

	require.NoError(t, txn.Rollback())
}
