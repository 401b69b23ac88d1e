package statements

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
)

// InsertStatement creates new records. Every row must
// carry an id field. The statement fails if any of the
// records exists.
type InsertStatement struct {
	Table string
	Rows  []sql.Document
}

// Writeable implements sql.Statement
func (stmt *InsertStatement) Writeable() bool {
	return true
}

// Compute implements sql.Statement. It returns the created
// records as a []sql.Document.
func (stmt *InsertStatement) Compute(ctx context.Context, opt *sql.Options, txn *kvs.Transaction, doc *sql.CursorDoc) (sql.Value, error) {
	if err := check(opt, stmt); err != nil {
		return nil, err
	}

	result := make([]sql.Document, 0, len(stmt.Rows))

	for _, row := range stmt.Rows {
		thing := sql.Thing{Table: stmt.Table, ID: row[sql.FieldID]}

		if err := sql.CreateRecord(ctx, opt, txn, thing, row); err != nil {
			return nil, err
		}

		created := row.Copy()
		created[sql.FieldID] = thing.ID
		result = append(result, created)
	}

	return result, nil
}

func (stmt *InsertStatement) String() string {
	var columns []string

	if len(stmt.Rows) > 0 {
		for column := range stmt.Rows[0] {
			columns = append(columns, column)
		}
	}

	sort.Strings(columns)
	rows := make([]string, len(stmt.Rows))

	for i, row := range stmt.Rows {
		values := make([]string, len(columns))

		for j, column := range columns {
			values[j] = quote(row[column])
		}

		rows[i] = "(" + strings.Join(values, ", ") + ")"
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", stmt.Table, strings.Join(columns, ", "), strings.Join(rows, ", "))
}
