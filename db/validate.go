package db

import (
	"fmt"
	"strings"

	rqlitesql "github.com/rqlite/sql"
)

// ValidateSelect parses a custom SQL text and rejects anything that is not
// a single SELECT statement. Classification is AST-based, no string
// matching on the statement itself. Multiple statements are refused by an
// interior-semicolon check; a semicolon inside a string literal is a
// false positive this guard accepts.
func ValidateSelect(query string) error {
	trimmed := strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
	if trimmed == "" {
		return fmt.Errorf("custom SQL is empty")
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("custom SQL must contain exactly one statement")
	}

	parser := rqlitesql.NewParser(strings.NewReader(trimmed))
	stmt, err := parser.ParseStatement()
	if err != nil {
		return fmt.Errorf("invalid SQL: %w", err)
	}

	if _, ok := stmt.(*rqlitesql.SelectStatement); !ok {
		return fmt.Errorf("custom SQL must be a SELECT statement, got %T", stmt)
	}

	return nil
}
