package repository

import "testing"

func TestPayloadFieldExpr(t *testing.T) {
	if got := payloadFieldExpr(dialectSQLite, "payload", "attach"); got != `json_extract(payload, '$."attach"')` {
		t.Fatalf("sqlite expr mismatch: %s", got)
	}
	if got := payloadFieldExpr(dialectPostgres, "payload", "attach"); got != "(payload::jsonb ->> 'attach')" {
		t.Fatalf("postgres expr mismatch: %s", got)
	}
}

func TestContainsClause(t *testing.T) {
	if got := containsClause(dialectPostgres, "order_id"); got != "order_id ILIKE ?" {
		t.Fatalf("postgres clause mismatch: %s", got)
	}
	if got := containsClause(dialectSQLite, "order_id"); got != "order_id LIKE ?" {
		t.Fatalf("sqlite clause mismatch: %s", got)
	}
}

func TestDialectOfNil(t *testing.T) {
	if dialectOf(nil) != dialectSQLite {
		t.Fatalf("nil db should default to sqlite")
	}
}

func TestNormalizePage(t *testing.T) {
	cases := []struct{ page, size, wantPage, wantSize int }{
		{0, 0, 1, defaultPageSize},
		{3, 500, 3, maxPageSize},
		{2, 10, 2, 10},
	}
	for _, tc := range cases {
		page, size := NormalizePage(tc.page, tc.size)
		if page != tc.wantPage || size != tc.wantSize {
			t.Fatalf("NormalizePage(%d,%d) = %d,%d", tc.page, tc.size, page, size)
		}
	}
}
