// Package parser turns query text into statements.
// THROW is recognised directly. Every other statement
// is parsed with vitess-sqlparser.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/SpeedReach/surrealdb/sql"
	"github.com/SpeedReach/surrealdb/sql/statements"
	"github.com/blastrain/vitess-sqlparser/sqlparser"
)

var (
	// ErrSyntax is returned for text that cannot be parsed
	ErrSyntax = errors.New("parse error")
	// ErrUnsupported is returned for valid SQL that has
	// no statement equivalent
	ErrUnsupported = errors.New("unsupported query")
)

func unsupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// Parse parses a query of one or more statements
// separated by semicolons
func Parse(query string) ([]sql.Statement, error) {
	parts, err := split(query)

	if err != nil {
		return nil, err
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: query is empty", ErrSyntax)
	}

	stmts := make([]sql.Statement, 0, len(parts))

	for _, part := range parts {
		stmt, err := ParseStatement(part)

		if err != nil {
			return nil, err
		}

		stmts = append(stmts, stmt)
	}

	return stmts, nil
}

// ParseStatement parses a single statement
func ParseStatement(text string) (sql.Statement, error) {
	text = strings.TrimSpace(text)

	if isKeyword(text, "THROW") {
		return parseThrow(text)
	}

	stmt, err := sqlparser.Parse(text)

	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, err)
	}

	switch s := stmt.(type) {
	case *sqlparser.Select:
		return convertSelect(s)
	case *sqlparser.Insert:
		return convertInsert(s)
	case *sqlparser.Update:
		return convertUpdate(s)
	case *sqlparser.Delete:
		return convertDelete(s)
	}

	return nil, unsupported("%T", stmt)
}

func isKeyword(text string, keyword string) bool {
	if len(text) < len(keyword) || !strings.EqualFold(text[:len(keyword)], keyword) {
		return false
	}

	return len(text) == len(keyword) || strings.ContainsRune(" \t\r\n'\"", rune(text[len(keyword)]))
}

func parseThrow(text string) (sql.Statement, error) {
	rest := strings.TrimSpace(text[len("THROW"):])
	message, n, err := unquote(rest)

	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(rest[n:]) != "" {
		return nil, fmt.Errorf("%w: unexpected %q after THROW message", ErrSyntax, strings.TrimSpace(rest[n:]))
	}

	return &statements.ThrowStatement{Message: message}, nil
}

// unquote decodes the string literal at the start of s and
// returns it along with the number of bytes it occupied
func unquote(s string) (string, int, error) {
	if s == "" || (s[0] != '\'' && s[0] != '"') {
		return "", 0, fmt.Errorf("%w: expected a string", ErrSyntax)
	}

	quote := s[0]
	var b strings.Builder

	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case c == quote && i+1 < len(s) && s[i+1] == quote:
			i++
			b.WriteByte(quote)
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}

	return "", 0, fmt.Errorf("%w: unterminated string", ErrSyntax)
}

// split splits a query on semicolons that are outside
// string literals and drops empty statements
func split(query string) ([]string, error) {
	var parts []string
	var quote byte
	start := 0

	for i := 0; i < len(query); i++ {
		c := query[i]

		switch {
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == ';':
			parts = append(parts, query[start:i])
			start = i + 1
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated string", ErrSyntax)
	}

	parts = append(parts, query[start:])
	result := parts[:0]

	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			result = append(result, part)
		}
	}

	return result, nil
}

func tableName(exprs sqlparser.TableExprs) (string, error) {
	if len(exprs) != 1 {
		return "", unsupported("statements must name exactly one table")
	}

	aliased, ok := exprs[0].(*sqlparser.AliasedTableExpr)

	if !ok {
		return "", unsupported("joins are not supported")
	}

	name, ok := aliased.Expr.(sqlparser.TableName)

	if !ok {
		return "", unsupported("subqueries are not supported")
	}

	return name.Name.String(), nil
}

func value(expr sqlparser.Expr) (string, error) {
	val, ok := expr.(*sqlparser.SQLVal)

	if !ok {
		return "", unsupported("%s is not a literal", sqlparser.String(expr))
	}

	return string(val.Val), nil
}

func conditions(where *sqlparser.Where) (sql.Conditions, error) {
	if where == nil {
		return nil, nil
	}

	var result sql.Conditions

	if err := appendConditions(&result, where.Expr); err != nil {
		return nil, err
	}

	return result, nil
}

func appendConditions(result *sql.Conditions, expr sqlparser.Expr) error {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		if err := appendConditions(result, e.Left); err != nil {
			return err
		}

		return appendConditions(result, e.Right)
	case *sqlparser.ParenExpr:
		return appendConditions(result, e.Expr)
	case *sqlparser.ComparisonExpr:
		if e.Operator != sqlparser.EqualStr {
			return unsupported("operator %s", e.Operator)
		}

		col, ok := e.Left.(*sqlparser.ColName)

		if !ok {
			return unsupported("%s is not a column", sqlparser.String(e.Left))
		}

		v, err := value(e.Right)

		if err != nil {
			return err
		}

		*result = append(*result, sql.Condition{Field: col.Name.String(), Value: v})

		return nil
	}

	return unsupported("condition %s", sqlparser.String(expr))
}

func convertSelect(s *sqlparser.Select) (sql.Statement, error) {
	table, err := tableName(s.From)

	if err != nil {
		return nil, err
	}

	where, err := conditions(s.Where)

	if err != nil {
		return nil, err
	}

	stmt := &statements.SelectStatement{Table: table, Where: where}

	for _, expr := range s.SelectExprs {
		switch e := expr.(type) {
		case *sqlparser.StarExpr:
			stmt.Fields = append(stmt.Fields, "*")
		case *sqlparser.AliasedExpr:
			col, ok := e.Expr.(*sqlparser.ColName)

			if !ok {
				return nil, unsupported("field %s", sqlparser.String(e.Expr))
			}

			stmt.Fields = append(stmt.Fields, col.Name.String())
		default:
			return nil, unsupported("field %s", sqlparser.String(expr))
		}
	}

	if len(s.OrderBy) > 1 {
		return nil, unsupported("ordering by more than one field")
	}

	for _, order := range s.OrderBy {
		col, ok := order.Expr.(*sqlparser.ColName)

		if !ok {
			return nil, unsupported("ordering by %s", sqlparser.String(order.Expr))
		}

		stmt.Order = &statements.Order{Field: col.Name.String(), Desc: order.Direction == sqlparser.DescScr}
	}

	if s.Limit != nil {
		if s.Limit.Offset != nil {
			return nil, unsupported("OFFSET")
		}

		raw, err := value(s.Limit.Rowcount)

		if err != nil {
			return nil, err
		}

		limit, err := strconv.Atoi(raw)

		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("%w: LIMIT must be a positive integer, got %q", ErrSyntax, raw)
		}

		stmt.Limit = limit
	}

	return stmt, nil
}

func convertInsert(s *sqlparser.Insert) (sql.Statement, error) {
	rows, ok := s.Rows.(sqlparser.Values)

	if !ok {
		return nil, unsupported("INSERT from SELECT")
	}

	if len(s.Columns) == 0 {
		return nil, unsupported("INSERT without columns")
	}

	stmt := &statements.InsertStatement{Table: s.Table.Name.String()}

	for _, row := range rows {
		if len(row) != len(s.Columns) {
			return nil, fmt.Errorf("%w: %d values for %d columns", ErrSyntax, len(row), len(s.Columns))
		}

		doc := sql.Document{}

		for i, expr := range row {
			v, err := value(expr)

			if err != nil {
				return nil, err
			}

			doc[s.Columns[i].String()] = v
		}

		stmt.Rows = append(stmt.Rows, doc)
	}

	return stmt, nil
}

func convertUpdate(s *sqlparser.Update) (sql.Statement, error) {
	table, err := tableName(s.TableExprs)

	if err != nil {
		return nil, err
	}

	where, err := conditions(s.Where)

	if err != nil {
		return nil, err
	}

	stmt := &statements.UpdateStatement{Table: table, Where: where}

	for _, expr := range s.Exprs {
		v, err := value(expr.Expr)

		if err != nil {
			return nil, err
		}

		stmt.Set = append(stmt.Set, statements.Assignment{Field: expr.Name.Name.String(), Value: v})
	}

	return stmt, nil
}

func convertDelete(s *sqlparser.Delete) (sql.Statement, error) {
	table, err := tableName(s.TableExprs)

	if err != nil {
		return nil, err
	}

	where, err := conditions(s.Where)

	if err != nil {
		return nil, err
	}

	return &statements.DeleteStatement{Table: table, Where: where}, nil
}
