package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roster-sync/internal/domain"
)

const memoryEventBuffer = 1024

type memTable struct {
	rows  map[string]json.RawMessage
	order []string
}

// Memory is an in-process Service. It keeps rows as JSON documents, emits a
// change event for every write to matching subscribers, and supports failure
// injection for tests and offline runs.
type Memory struct {
	mu      sync.Mutex
	tables  map[Table]*memTable
	missing map[Table]bool
	failing map[Table]error
	selects map[Table]int
	subs    map[*memSub]struct{}
	now     func() time.Time
}

// NewMemory creates an empty in-memory service
func NewMemory() *Memory {
	return &Memory{
		tables:  make(map[Table]*memTable),
		missing: make(map[Table]bool),
		failing: make(map[Table]error),
		selects: make(map[Table]int),
		subs:    make(map[*memSub]struct{}),
		now:     time.Now,
	}
}

// DropTable makes every access to the table fail with domain.ErrTableMissing
func (m *Memory) DropTable(table Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missing[table] = true
}

// FailTable makes every access to the table return err until cleared with nil
func (m *Memory) FailTable(table Table, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, table)
		return
	}
	m.failing[table] = err
}

// Selects returns how many times the table has been read
func (m *Memory) Selects(table Table) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selects[table]
}

// Get returns the stored document for a row id
func (m *Memory) Get(table Table, id string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	raw, ok := t.rows[id]
	return raw, ok
}

// Len returns the number of rows in the table
func (m *Memory) Len(table Table) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		return len(t.rows)
	}
	return 0
}

func (m *Memory) check(table Table) error {
	if m.missing[table] {
		return fmt.Errorf("relation %q does not exist: %w", table, domain.ErrTableMissing)
	}
	return m.failing[table]
}

// Select returns rows matching the filter in insertion order
func (m *Memory) Select(ctx context.Context, table Table, filter Filter) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.selects[table]++
	if err := m.check(table); err != nil {
		return nil, err
	}
	t, ok := m.tables[table]
	if !ok {
		return []json.RawMessage{}, nil
	}
	out := make([]json.RawMessage, 0, len(t.order))
	for _, id := range t.order {
		raw := t.rows[id]
		if matches(raw, filter) {
			out = append(out, slices.Clone(raw))
		}
	}
	return out, nil
}

// Upsert writes rows keyed by id and emits INSERT or UPDATE events
func (m *Memory) Upsert(ctx context.Context, rows ...Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		if err := m.check(row.Table()); err != nil {
			return err
		}
	}
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encoding %s row %s: %w", row.Table(), row.RowID(), err)
		}
		t := m.table(row.Table())
		prev, exists := t.rows[row.RowID()]
		if !exists {
			t.order = append(t.order, row.RowID())
		}
		t.rows[row.RowID()] = data

		ev := ChangeEvent{
			Table:      row.Table(),
			Op:         OpInsert,
			TeamID:     row.RowTeamID(),
			New:        data,
			CommitTime: m.now(),
		}
		if exists {
			ev.Op = OpUpdate
			ev.Old = prev
		}
		m.emit(ev)
	}
	return nil
}

// Delete removes rows matching the filter and emits DELETE events
func (m *Memory) Delete(ctx context.Context, table Table, filter Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(table); err != nil {
		return err
	}
	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	kept := t.order[:0:0]
	for _, id := range t.order {
		raw := t.rows[id]
		if !matches(raw, filter) {
			kept = append(kept, id)
			continue
		}
		delete(t.rows, id)
		m.emit(ChangeEvent{
			Table:      table,
			Op:         OpDelete,
			TeamID:     teamOf(raw),
			Old:        raw,
			CommitTime: m.now(),
		})
	}
	t.order = kept
	return nil
}

// Emit delivers an arbitrary event to matching subscribers. Tests use it to
// inject malformed payloads, foreign-team rows and resets.
func (m *Memory) Emit(ev ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emit(ev)
}

// Subscribe opens a change stream for the team's rows in the given tables
func (m *Memory) Subscribe(ctx context.Context, teamID string, tables []Table) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memSub{
		owner:  m,
		teamID: teamID,
		tables: slices.Clone(tables),
		ch:     make(chan ChangeEvent, memoryEventBuffer),
	}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
	return sub, nil
}

// Subscribers returns the number of open subscriptions
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) table(name Table) *memTable {
	t, ok := m.tables[name]
	if !ok {
		t = &memTable{rows: make(map[string]json.RawMessage)}
		m.tables[name] = t
	}
	return t
}

// emit must be called with mu held. A full subscriber buffer drops the
// event, matching the at-most-once delivery of the real feeds.
func (m *Memory) emit(ev ChangeEvent) {
	for sub := range m.subs {
		if !sub.wants(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

type memSub struct {
	owner  *Memory
	teamID string
	tables []Table
	ch     chan ChangeEvent
	closed bool
}

func (s *memSub) wants(ev ChangeEvent) bool {
	if ev.Op != OpReset && !slices.Contains(s.tables, ev.Table) {
		return false
	}
	return ev.TeamID == "" || ev.TeamID == s.teamID
}

func (s *memSub) Events() <-chan ChangeEvent {
	return s.ch
}

func (s *memSub) Close() error {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.owner.subs, s)
	close(s.ch)
	return nil
}

func matches(raw json.RawMessage, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}
	for _, c := range filter {
		v, ok := doc[c.Column]
		if !ok || v == nil || fmt.Sprint(v) != c.Value {
			return false
		}
	}
	return true
}

func teamOf(raw json.RawMessage) string {
	var doc struct {
		TeamID string `json:"team_id"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return doc.TeamID
}
