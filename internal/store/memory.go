package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory хранит записи в памяти процесса.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
	unique map[string][]string
	now    func() time.Time
}

// MemoryOption настраивает Memory.
type MemoryOption func(*Memory)

// WithUnique требует уникальности значения поля в таблице. Пустые значения не проверяются.
func WithUnique(table, field string) MemoryOption {
	return func(m *Memory) {
		m.unique[table] = append(m.unique[table], field)
	}
}

// NewMemory создаёт пустое хранилище в памяти.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		tables: make(map[string]map[string]Record),
		unique: make(map[string][]string),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create сохраняет новую запись и присваивает ей идентификатор.
func (m *Memory) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]Record)
		m.tables[table] = t
	}

	rec := Record{
		ID:        uuid.NewString(),
		Fields:    maps.Clone(fields),
		CreatedAt: m.now().UTC(),
		Version:   1,
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	if err := m.checkUnique(table, rec); err != nil {
		return Record{}, err
	}
	t[rec.ID] = rec

	return cloneRecord(rec), nil
}

// Get возвращает запись по идентификатору.
func (m *Memory) Get(ctx context.Context, table, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tables[table][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Update дополняет поля записи и увеличивает её версию.
func (m *Memory) Update(ctx context.Context, table, id string, version int64, fields map[string]any) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tables[table][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if version != 0 && rec.Version != version {
		return Record{}, fmt.Errorf("%w: %s has version %d, expected %d", ErrVersionConflict, id, rec.Version, version)
	}

	rec.Fields = maps.Clone(rec.Fields)
	maps.Copy(rec.Fields, fields)
	if err := m.checkUnique(table, rec); err != nil {
		return Record{}, err
	}
	rec.Version++
	m.tables[table][id] = rec

	return cloneRecord(rec), nil
}

// Query возвращает записи, удовлетворяющие всем условиям запроса.
func (m *Memory) Query(ctx context.Context, table string, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []Record
	for _, rec := range m.tables[table] {
		ok, err := matches(rec, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, cloneRecord(rec))
		}
	}

	sortRecords(res, q.OrderBy)

	return res, nil
}

// Delete удаляет записи. Если хотя бы одна запись не найдена, ничего не удаляется.
func (m *Memory) Delete(ctx context.Context, table string, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tables[table]
	for _, id := range ids {
		if _, ok := t[id]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	for _, id := range ids {
		delete(t, id)
	}

	return nil
}

// checkUnique вызывается под блокировкой записи.
func (m *Memory) checkUnique(table string, rec Record) error {
	for _, field := range m.unique[table] {
		v, ok := rec.Fields[field]
		if !ok || v == nil || v == "" {
			continue
		}
		for id, other := range m.tables[table] {
			if id == rec.ID {
				continue
			}
			if cmp, ok := compareValues(other.Fields[field], v); ok && cmp == 0 {
				return fmt.Errorf("%w: %s = %v", ErrDuplicate, field, v)
			}
		}
	}
	return nil
}

func cloneRecord(rec Record) Record {
	rec.Fields = maps.Clone(rec.Fields)
	return rec
}

func fieldValue(rec Record, field string) any {
	if field == CreatedDateField {
		return rec.CreatedAt
	}
	return rec.Fields[field]
}

func matches(rec Record, where []Condition) (bool, error) {
	for _, c := range where {
		v := fieldValue(rec, c.Field)
		ok := false
		for _, want := range c.Values {
			cmp, comparable := compareValues(v, want)
			if !comparable {
				continue
			}

			switch c.Operator {
			case OpEqualTo:
				ok = cmp == 0
			case OpGreaterThanOrEqualTo:
				ok = cmp >= 0
			case OpLessThanOrEqualTo:
				ok = cmp <= 0
			default:
				return false, fmt.Errorf("unsupported operator %q", c.Operator)
			}
			if ok {
				break
			}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func sortRecords(recs []Record, order []Order) {
	if len(order) == 0 {
		order = []Order{{Field: CreatedDateField}}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		for _, o := range order {
			cmp, _ := compareValues(fieldValue(recs[i], o.Field), fieldValue(recs[j], o.Field))
			if cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// compareValues сравнивает значения поля: время, числа, затем строки.
func compareValues(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}

	if da, ok := ToDecimal(a); ok {
		if db, ok := ToDecimal(b); ok {
			return da.Cmp(db), true
		}
	}

	if a == nil || b == nil {
		return 0, false
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// ToDecimal приводит числовое значение поля к decimal.Decimal.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case interface{ String() string }:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}
