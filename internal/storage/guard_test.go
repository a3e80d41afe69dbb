package storage

import (
	"errors"
	"testing"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name  string
		query string
		safe  bool
	}{
		{"simple select", "SELECT COUNT(*) FROM Customers", true},
		{"trailing semicolon", "SELECT 1;", true},
		{"cte", "WITH t AS (SELECT 1 AS x) SELECT x FROM t", true},
		{"parenthesised", "(SELECT 1)", true},
		{"quoted table", `SELECT * FROM "Order Details" LIMIT 2`, true},
		{"keyword in literal", "SELECT * FROM Products WHERE ProductName = 'Drop Shipping'", true},
		{"keyword in identifier", `SELECT "Update Date" FROM Orders`, true},
		{"replace function", "SELECT REPLACE(ProductName, 'a', 'b') FROM Products", true},
		{"keyword in comment", "SELECT 1 -- delete later", true},
		{"delete", "DELETE FROM Orders", false},
		{"lowercase drop", "drop table Orders", false},
		{"stacked", "SELECT 1; DROP TABLE Orders", false},
		{"cte delete", "WITH d AS (DELETE FROM Orders RETURNING *) SELECT * FROM d", false},
		{"select into", "SELECT * INTO backup FROM Orders", false},
		{"pragma", "PRAGMA writable_schema = 1", false},
		{"attach", "ATTACH DATABASE 'x.db' AS x", false},
		{"empty", "  ;  ", false},
		{"comment hides nothing", "/* SELECT */ UPDATE Orders SET Freight = 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if tt.safe && err != nil {
				t.Fatalf("CheckReadOnly(%q) err=%v, want nil", tt.query, err)
			}
			if !tt.safe {
				if err == nil {
					t.Fatalf("CheckReadOnly(%q) should reject", tt.query)
				}
				if !errors.Is(err, ErrUnsafeQuery) {
					t.Fatalf("err=%v should wrap ErrUnsafeQuery", err)
				}
			}
		})
	}
}
