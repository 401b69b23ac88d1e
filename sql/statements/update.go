package statements

import (
	"context"
	"fmt"
	"strings"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
)

// Assignment sets a field to a value
type Assignment struct {
	Field string
	Value string
}

// UpdateStatement changes fields of every matching record
type UpdateStatement struct {
	Table string
	Set   []Assignment
	Where sql.Conditions
}

// Writeable implements sql.Statement
func (stmt *UpdateStatement) Writeable() bool {
	return true
}

// Compute implements sql.Statement. It returns the updated
// records as a []sql.Document.
func (stmt *UpdateStatement) Compute(ctx context.Context, opt *sql.Options, txn *kvs.Transaction, doc *sql.CursorDoc) (sql.Value, error) {
	if err := check(opt, stmt); err != nil {
		return nil, err
	}

	for _, assignment := range stmt.Set {
		if assignment.Field == sql.FieldID {
			return nil, fmt.Errorf("%w: the id of a record cannot be changed", sql.ErrInvalidStatement)
		}
	}

	docs, err := collect(ctx, opt, txn, stmt.Table, stmt.Where)

	if err != nil {
		return nil, err
	}

	result := make([]sql.Document, 0, len(docs))

	for _, cursor := range docs {
		updated, err := stmt.update(opt, txn, cursor)

		if err != nil {
			return nil, err
		}

		result = append(result, updated)
	}

	return result, nil
}

func (stmt *UpdateStatement) update(opt *sql.Options, txn *kvs.Transaction, cursor *sql.CursorDoc) (sql.Document, error) {
	doc := cursor.Doc.Copy()

	for _, assignment := range stmt.Set {
		doc[assignment.Field] = assignment.Value
	}

	if err := sql.SetRecord(opt, txn, cursor.ID, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func (stmt *UpdateStatement) String() string {
	set := make([]string, len(stmt.Set))

	for i, assignment := range stmt.Set {
		set[i] = assignment.Field + " = " + quote(assignment.Value)
	}

	return fmt.Sprintf("UPDATE %s SET %s%s", stmt.Table, strings.Join(set, ", "), where(stmt.Where))
}
