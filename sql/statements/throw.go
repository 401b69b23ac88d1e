package statements

import (
	"context"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
)

// ThrowStatement fails the query with a custom message
type ThrowStatement struct {
	Message string
}

// Writeable implements sql.Statement
func (stmt *ThrowStatement) Writeable() bool {
	return false
}

// Compute implements sql.Statement. It always
// returns a *sql.ThrownError.
func (stmt *ThrowStatement) Compute(ctx context.Context, opt *sql.Options, txn *kvs.Transaction, doc *sql.CursorDoc) (sql.Value, error) {
	return nil, sql.Thrown(stmt.Message)
}

func (stmt *ThrowStatement) String() string {
	return "THROW " + quote(stmt.Message)
}
