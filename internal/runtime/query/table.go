package query

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/drblury/uskit/internal/runtime/events"
	"github.com/drblury/uskit/internal/runtime/wire"
)

// Table receives the row stream of a query client.
type Table interface {
	Reset()
	Column(col wire.ColumnDef)
	Insert(rowID string, row map[string]any)
	Update(rowID string, partial map[string]any)
	Delete(rowID string)
}

// ConnectTable feeds the reset, column, insert, update and delete events of
// client into table. Row events without a row id are dropped.
func ConnectTable(client events.Emitter, table Table) {
	client.On(events.Reset, func(ctx context.Context, evt events.Event) error {
		table.Reset()
		return nil
	})
	client.On(events.Column, events.Typed(func(ctx context.Context, evt events.Event, col wire.ColumnDef) error {
		table.Column(col)
		return nil
	}))
	client.On(events.Insert, rowHandler(func(id string, row map[string]any) { table.Insert(id, row) }))
	client.On(events.Update, rowHandler(func(id string, row map[string]any) { table.Update(id, row) }))
	client.On(events.Delete, rowHandler(func(id string, _ map[string]any) { table.Delete(id) }))
}

func rowHandler(apply func(id string, row map[string]any)) events.Handler {
	return func(ctx context.Context, evt events.Event) error {
		id, ok := RowID(evt)
		if !ok {
			return nil
		}
		var row map[string]any
		if err := events.DecodeContent(evt, &row); err != nil {
			return err
		}
		apply(id, row)
		return nil
	}
}

// Row is one mirrored row.
type Row struct {
	ID     string
	Values map[string]any
}

// Mirror is a Table that keeps the rows of a query in memory, in insertion
// order. It is safe for concurrent use.
type Mirror struct {
	mu      sync.RWMutex
	columns []wire.ColumnDef
	order   []string
	rows    map[string]map[string]any
	ignored int
}

var _ Table = (*Mirror)(nil)

func NewMirror() *Mirror {
	return &Mirror{rows: make(map[string]map[string]any)}
}

// Reset drops every row and column.
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns = nil
	m.order = nil
	m.rows = make(map[string]map[string]any)
}

func (m *Mirror) Column(col wire.ColumnDef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns = append(m.columns, col)
}

// Insert stores row under rowID. Inserting a known id replaces the row in
// place.
func (m *Mirror) Insert(rowID string, row map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[rowID]; !ok {
		m.order = append(m.order, rowID)
	}
	m.rows[rowID] = deepCopy(row)
}

// Update merges partial into the row stored under rowID. Nested maps are
// merged and every other value is replaced. Unknown ids are ignored.
func (m *Mirror) Update(rowID string, partial map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[rowID]
	if !ok {
		m.ignored++
		return
	}
	merge(row, partial)
}

// Delete removes the row stored under rowID. Unknown ids are ignored.
func (m *Mirror) Delete(rowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[rowID]; !ok {
		m.ignored++
		return
	}
	delete(m.rows, rowID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == rowID })
}

// Rows returns a copy of every row in insertion order.
func (m *Mirror) Rows() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Row, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, Row{ID: id, Values: deepCopy(m.rows[id])})
	}
	return out
}

// Row returns a copy of the row stored under rowID.
func (m *Mirror) Row(rowID string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[rowID]
	if !ok {
		return nil, false
	}
	return deepCopy(row), true
}

func (m *Mirror) Columns() []wire.ColumnDef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.columns)
}

func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Ignored counts updates and deletes that named an unknown row id.
func (m *Mirror) Ignored() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ignored
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				merge(cur, sub)
				continue
			}
		}
		dst[k] = deepCopyValue(v)
	}
}

func deepCopy(m map[string]any) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		out = make(map[string]any)
	}
	for k, v := range out {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
