package connectors

import (
	"context"
	"testing"
	"time"
)

// The adapter below has no live connection: every call must be rejected by
// identifier validation before a statement is built.
func TestPostgresAdapterRejectsInvalidIdentifiers(t *testing.T) {
	a := &PostgresAdapter{name: "warehouse"}
	ctx := context.Background()

	fetchCases := []struct {
		name       string
		entityType string
		filter     Filter
	}{
		{"semicolon in table", "products; DROP TABLE products", nil},
		{"quoted table", `products"`, nil},
		{"empty table", "", nil},
		{"leading digit", "1products", nil},
		{"bad filter field", "products", Filter{"name = '' OR 1=1 --": "x"}},
		{"spaced filter field", "products", Filter{"updated at": "x"}},
	}

	for _, tc := range fetchCases {
		t.Run("fetch/"+tc.name, func(t *testing.T) {
			if _, err := a.Fetch(ctx, tc.entityType, tc.filter, nil); err == nil {
				t.Errorf("Fetch(%q, %v) accepted an invalid identifier", tc.entityType, tc.filter)
			}
		})
	}

	updateCases := []struct {
		name       string
		entityType string
		entity     Entity
	}{
		{"semicolon in table", "products; DROP TABLE products", Entity{"id": "1"}},
		{"bad column", "products", Entity{"id": "1", "name) VALUES ('x'); --": "y"}},
		{"parenthesized column", "products", Entity{"id": "1", "price(": 2}},
	}

	for _, tc := range updateCases {
		t.Run("update/"+tc.name, func(t *testing.T) {
			if _, err := a.Update(ctx, tc.entityType, tc.entity); err == nil {
				t.Errorf("Update(%q, %v) accepted an invalid identifier", tc.entityType, tc.entity)
			}
		})
	}
}

func TestPostgresAdapterAcceptsPlainIdentifiers(t *testing.T) {
	for _, name := range []string{"products", "sync_targets", "Orders", "_staging", "t2"} {
		if err := checkIdent("entity type", name); err != nil {
			t.Errorf("checkIdent(%q) = %v, want nil", name, err)
		}
	}
}

func TestEntityUpdatedAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if got, ok := (Entity{"updated_at": now}).UpdatedAt(); !ok || !got.Equal(now) {
		t.Errorf("UpdatedAt() = %v, %v; want %v, true", got, ok, now)
	}
	if got, ok := (Entity{"updated_at": now.Format(time.RFC3339)}).UpdatedAt(); !ok || !got.Equal(now) {
		t.Errorf("UpdatedAt() = %v, %v; want parsed %v", got, ok, now)
	}
	if _, ok := (Entity{"updated_at": "yesterday"}).UpdatedAt(); ok {
		t.Error("unparseable updated_at reported ok")
	}
	if _, ok := (Entity{}).UpdatedAt(); ok {
		t.Error("missing updated_at reported ok")
	}
}
