package storage

import (
	"fmt"
	"strings"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// RenderSchema formats tables the way query-generation prompts expect:
//
//	Table: Orders
//	Columns: OrderID INTEGER, CustomerID TEXT
func RenderSchema(tables []Table) string {
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = strings.TrimSpace(c.Name + " " + c.Type)
		}
		parts = append(parts, fmt.Sprintf("Table: %s\nColumns: %s", t.Name, strings.Join(cols, ", ")))
	}
	return strings.Join(parts, "\n\n")
}

func TableNames(tables []Table) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// QuoteIdent double-quotes an identifier, escaping embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
