package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/hotel-billing/internal/store"
)

var sqlOperators = map[store.Operator]string{
	store.OpEqualTo:              "=",
	store.OpGreaterThanOrEqualTo: ">=",
	store.OpLessThanOrEqualTo:    "<=",
}

// queryBuilder собирает параметризованный SQL. Имена полей тоже передаются параметрами.
type queryBuilder struct {
	sb   strings.Builder
	args []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// buildQuery переводит store.Query в SQL-запрос к таблице records.
func buildQuery(table string, q store.Query) (string, []any, error) {
	b := &queryBuilder{}

	b.sb.WriteString("SELECT id::text, fields, created_at, version FROM records WHERE table_name = ")
	b.sb.WriteString(b.arg(table))

	for _, c := range q.Where {
		op, ok := sqlOperators[c.Operator]
		if !ok {
			return "", nil, fmt.Errorf("unsupported operator %q", c.Operator)
		}
		if len(c.Values) == 0 {
			return "", nil, fmt.Errorf("condition on %s has no values", c.Field)
		}

		parts := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			expr, err := b.condition(c.Field, op, v)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, expr)
		}

		b.sb.WriteString(" AND (")
		b.sb.WriteString(strings.Join(parts, " OR "))
		b.sb.WriteString(")")
	}

	order := q.OrderBy
	if len(order) == 0 {
		order = []store.Order{{Field: store.CreatedDateField}}
	}

	orderParts := make([]string, 0, len(order))
	for _, o := range order {
		expr := "created_at"
		if o.Field != store.CreatedDateField {
			expr = "fields ->> " + b.arg(o.Field) + "::text"
		}
		if o.Desc {
			expr += " DESC"
		}
		orderParts = append(orderParts, expr)
	}
	b.sb.WriteString(" ORDER BY ")
	b.sb.WriteString(strings.Join(orderParts, ", "))

	return b.sb.String(), b.args, nil
}

func (b *queryBuilder) condition(field, op string, v any) (string, error) {
	if field == store.CreatedDateField {
		t, ok := v.(time.Time)
		if !ok {
			return "", fmt.Errorf("%s expects time value, got %T", field, v)
		}
		return fmt.Sprintf("created_at %s %s", op, b.arg(t)), nil
	}

	switch n := v.(type) {
	case decimal.Decimal, float64, float32, int, int64:
		d, _ := store.ToDecimal(n)
		key := b.arg(field)
		return fmt.Sprintf("(fields ->> %s::text)::numeric %s %s::numeric", key, op, b.arg(d.String())), nil
	case string:
		key := b.arg(field)
		return fmt.Sprintf("fields ->> %s::text %s %s", key, op, b.arg(n)), nil
	default:
		return "", fmt.Errorf("unsupported value type %T for %s", v, field)
	}
}
