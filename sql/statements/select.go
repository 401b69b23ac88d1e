package statements

import (
	"context"
	"fmt"
	"strings"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
	"github.com/SpeedReach/surrealdb/utils/stream"
)

// Order sorts the result of a SELECT by one field
type Order struct {
	Field string
	Desc  bool
}

// compare orders by the field and then by record ID
// so that no two records compare equal
func (order *Order) compare(a, b *sql.CursorDoc) int {
	c := strings.Compare(a.Doc[order.Field], b.Doc[order.Field])

	if order.Desc {
		c = -c
	}

	if c != 0 {
		return c
	}

	return strings.Compare(a.ID.ID, b.ID.ID)
}

// SelectStatement reads records from a table
type SelectStatement struct {
	// Fields to return. Empty or "*" returns whole documents.
	Fields []string
	Table  string
	Where  sql.Conditions
	Order  *Order
	// Limit of records returned. Zero means no limit.
	Limit int
}

// Writeable implements sql.Statement
func (stmt *SelectStatement) Writeable() bool {
	return false
}

// Compute implements sql.Statement. It returns a
// []sql.Document.
func (stmt *SelectStatement) Compute(ctx context.Context, opt *sql.Options, txn *kvs.Transaction, doc *sql.CursorDoc) (sql.Value, error) {
	if err := check(opt, stmt); err != nil {
		return nil, err
	}

	s, done, err := records(ctx, opt, txn, stmt.Table, stmt.Where)

	if err != nil {
		return nil, err
	}

	defer done()

	var sorted stream.Processor[*sql.CursorDoc]

	if stmt.Order != nil {
		sorted = stream.Sort(stmt.Order.compare, stmt.Limit)
	}

	s = stream.Pipeline(s, sorted, stream.Limit[*sql.CursorDoc](stmt.Limit))
	result := []sql.Document{}

	for s.Next() {
		result = append(result, stmt.project(s.Value().Doc))
	}

	if err := s.Error(); err != nil {
		return nil, err
	}

	return result, nil
}

func (stmt *SelectStatement) project(doc sql.Document) sql.Document {
	if len(stmt.Fields) == 0 {
		return doc.Copy()
	}

	result := sql.Document{}

	for _, field := range stmt.Fields {
		if field == "*" {
			return doc.Copy()
		}

		if value, ok := doc[field]; ok {
			result[field] = value
		}
	}

	return result
}

func (stmt *SelectStatement) String() string {
	fields := "*"

	if len(stmt.Fields) > 0 {
		fields = strings.Join(stmt.Fields, ", ")
	}

	s := fmt.Sprintf("SELECT %s FROM %s%s", fields, stmt.Table, where(stmt.Where))

	if stmt.Order != nil {
		s += " ORDER BY " + stmt.Order.Field

		if stmt.Order.Desc {
			s += " DESC"
		}
	}

	if stmt.Limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", stmt.Limit)
	}

	return s
}

func where(conditions sql.Conditions) string {
	if len(conditions) == 0 {
		return ""
	}

	parts := make([]string, len(conditions))

	for i, condition := range conditions {
		parts[i] = condition.Field + " = " + quote(condition.Value)
	}

	return " WHERE " + strings.Join(parts, " AND ")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}
