// Package store описывает контракт записи-хранилища, через которое работает биллинг,
// и содержит его реализацию в памяти.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound возвращается, если запись с указанным идентификатором не существует.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict возвращается, если запись была изменена после чтения.
	ErrVersionConflict = errors.New("record version conflict")
	// ErrDuplicate возвращается при нарушении уникальности поля.
	ErrDuplicate = errors.New("duplicate record")
)

// RejectedError переносит сообщение хранилища об отклонённой записи (валидация, права доступа).
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("record rejected: %s", e.Message)
}

// CreatedDateField задаёт псевдополе для фильтрации и сортировки по времени создания записи.
const CreatedDateField = "Created_Date__c"

// Operator задаёт операцию сравнения в условии запроса.
type Operator string

const (
	OpEqualTo              Operator = "EqualTo"
	OpGreaterThanOrEqualTo Operator = "GreaterThanOrEqualTo"
	OpLessThanOrEqualTo    Operator = "LessThanOrEqualTo"
)

// Condition описывает одно условие фильтра. Запись подходит, если поле совпадает хотя бы с одним значением.
type Condition struct {
	Field    string
	Operator Operator
	Values   []any
}

// Order задаёт сортировку результата.
type Order struct {
	Field string
	Desc  bool
}

// Query описывает выборку записей. Все условия объединяются через AND.
type Query struct {
	Where   []Condition
	OrderBy []Order
}

// Record описывает запись таблицы хранилища.
type Record struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	Version   int64
}

// RecordStore определяет контракт хранилища записей.
type RecordStore interface {
	Create(ctx context.Context, table string, fields map[string]any) (Record, error)
	Get(ctx context.Context, table, id string) (Record, error)
	// Update дополняет поля записи. Нулевая version означает обновление без проверки версии.
	Update(ctx context.Context, table, id string, version int64, fields map[string]any) (Record, error)
	Query(ctx context.Context, table string, q Query) ([]Record, error)
	Delete(ctx context.Context, table string, ids ...string) error
}

// Where создаёт условие запроса.
func Where(field string, op Operator, values ...any) Condition {
	return Condition{Field: field, Operator: op, Values: values}
}
