// Package testutils provides shared test doubles for the ClickHouse
// history sink.
package testutils

import (
	"context"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// MockClickHouseConn records batch inserts and serves empty query
// results. The embedded driver.Conn panics on anything not overridden,
// which is what a test would want to hear about.
type MockClickHouseConn struct {
	driver.Conn

	mu         sync.Mutex
	Batches    []*MockBatch
	QueryCalls int
	PingErr    error
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &MockBatch{Query: query}
	m.Batches = append(m.Batches, b)
	return b, nil
}

func (m *MockClickHouseConn) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	m.mu.Lock()
	m.QueryCalls++
	m.mu.Unlock()
	return &MockRows{}, nil
}

func (m *MockClickHouseConn) Ping(ctx context.Context) error {
	return m.PingErr
}

// AppendedRows returns the total rows appended across all batches.
func (m *MockClickHouseConn) AppendedRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.Batches {
		total += len(b.Appended)
	}
	return total
}

// MockBatch implements driver.Batch, recording every Append.
type MockBatch struct {
	driver.Batch

	mu       sync.Mutex
	Query    string
	Appended [][]interface{}
	Sent     bool
}

func (b *MockBatch) Append(v ...interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Appended = append(b.Appended, v)
	return nil
}

func (b *MockBatch) Send() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = true
	return nil
}

func (b *MockBatch) Abort() error {
	return nil
}

// MockRows implements driver.Rows with no rows.
type MockRows struct {
	driver.Rows
}

func (m *MockRows) Next() bool                     { return false }
func (m *MockRows) Scan(dest ...interface{}) error { return nil }
func (m *MockRows) Close() error                   { return nil }
func (m *MockRows) Err() error                     { return nil }
