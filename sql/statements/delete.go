package statements

import (
	"context"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
)

// DeleteStatement deletes every matching record
type DeleteStatement struct {
	Table string
	Where sql.Conditions
}

// Writeable implements sql.Statement
func (stmt *DeleteStatement) Writeable() bool {
	return true
}

// Compute implements sql.Statement. It returns an empty
// []sql.Document.
func (stmt *DeleteStatement) Compute(ctx context.Context, opt *sql.Options, txn *kvs.Transaction, doc *sql.CursorDoc) (sql.Value, error) {
	if err := check(opt, stmt); err != nil {
		return nil, err
	}

	docs, err := collect(ctx, opt, txn, stmt.Table, stmt.Where)

	if err != nil {
		return nil, err
	}

	for _, cursor := range docs {
		if err := sql.DeleteRecord(opt, txn, cursor.ID); err != nil {
			return nil, err
		}
	}

	return []sql.Document{}, nil
}

func (stmt *DeleteStatement) String() string {
	return "DELETE FROM " + stmt.Table + where(stmt.Where)
}
