package sql

import (
	"database/sql/driver"
	"io"
)

// mockDriver implements the sql/driver.Driver interface.
type mockDriver struct {
	OpenFunc func(name string) (driver.Conn, error)
}

func (m *mockDriver) Open(name string) (driver.Conn, error) {
	return m.OpenFunc(name)
}

// mockConn implements the sql/driver.Conn interface.
type mockConn struct {
	PrepareFunc func(query string) (driver.Stmt, error)
	BeginFunc   func() (driver.Tx, error)
}

func (m mockConn) Prepare(query string) (driver.Stmt, error) {
	return m.PrepareFunc(query)
}

func (mockConn) Close() error {
	return nil
}

func (m mockConn) Begin() (driver.Tx, error) {
	return m.BeginFunc()
}

// mockStmt implements the sql/driver.Stmt interface.
type mockStmt struct {
	ExecFunc  func(args []driver.Value) (driver.Result, error)
	QueryFunc func(args []driver.Value) (driver.Rows, error)
}

func (mockStmt) Close() error {
	return nil
}

func (mockStmt) NumInput() int {
	return -1 // do not check
}

func (m mockStmt) Exec(args []driver.Value) (driver.Result, error) {
	return m.ExecFunc(args)
}

func (m mockStmt) Query(args []driver.Value) (driver.Rows, error) {
	return m.QueryFunc(args)
}

// mockTx implements the sql/driver.Tx interface.
type mockTx struct {
	CommitFunc   func() error
	RollbackFunc func() error
}

func (m mockTx) Commit() error {
	return m.CommitFunc()
}

func (m mockTx) Rollback() error {
	return m.RollbackFunc()
}

// mockResult implements the sql/driver.Result interface.
type mockResult int64

func (mockResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (m mockResult) RowsAffected() (int64, error) {
	return int64(m), nil
}

// mockRows implements the sql/driver.Rows interface with a single column.
type mockRows struct {
	values []driver.Value
}

func (*mockRows) Columns() []string {
	return []string{"?column?"}
}

func (*mockRows) Close() error {
	return nil
}

func (m *mockRows) Next(dest []driver.Value) error {
	if len(m.values) == 0 {
		return io.EOF
	}
	dest[0] = m.values[0]
	m.values = m.values[1:]
	return nil
}
