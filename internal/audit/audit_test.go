package audit

import (
	"context"
	"testing"
)

func TestMemoryLog_RecordAssignsMonotonicIDs(t *testing.T) {
	l := NewMemoryLog(nil)
	ctx := context.Background()

	a, err := l.Record(ctx, Entry{Action: "store.create.requested"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	b, err := l.Record(ctx, Entry{Action: "store.create.started"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if b.ID <= a.ID {
		t.Errorf("second entry id %d should be greater than first %d", b.ID, a.ID)
	}
}

func TestMemoryLog_QueryOrdersMostRecentFirst(t *testing.T) {
	l := NewMemoryLog(nil)
	ctx := context.Background()
	storeID := "abcd1234"

	for _, action := range []string{"store.create.requested", "store.create.started", "store.create.succeeded"} {
		if _, err := l.Record(ctx, Entry{Action: action, StoreID: &storeID}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := l.Query(ctx, Filter{StoreID: storeID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].Action != "store.create.succeeded" {
		t.Errorf("entries[0].Action = %q, want store.create.succeeded", entries[0].Action)
	}
	if entries[2].Action != "store.create.requested" {
		t.Errorf("entries[2].Action = %q, want store.create.requested", entries[2].Action)
	}
}

func TestMemoryLog_QueryFiltersByStoreAndAction(t *testing.T) {
	l := NewMemoryLog(nil)
	ctx := context.Background()
	store1, store2 := "abcd1234", "efgh5678"

	l.Record(ctx, Entry{Action: "store.create.started", StoreID: &store1})
	l.Record(ctx, Entry{Action: "store.create.started", StoreID: &store2})
	l.Record(ctx, Entry{Action: "store.delete.succeeded", StoreID: &store1})

	entries, err := l.Query(ctx, Filter{StoreID: store1, Action: "store.create.started"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if *entries[0].StoreID != store1 {
		t.Errorf("StoreID = %q, want %q", *entries[0].StoreID, store1)
	}
}

func TestMemoryLog_QueryLimitDefaultsAndCaps(t *testing.T) {
	l := NewMemoryLog(nil)
	ctx := context.Background()

	for i := 0; i < defaultLimit+10; i++ {
		l.Record(ctx, Entry{Action: "store.create.started"})
	}

	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != defaultLimit {
		t.Errorf("len(entries) = %d, want default limit %d", len(entries), defaultLimit)
	}

	entries, err = l.Query(ctx, Filter{Limit: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("len(entries) = %d, want 5", len(entries))
	}
}

func TestRedact_MasksSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"root-password": "hunter2",
		"db_token":      "abc123",
		"secretValue":   "xyz",
		"store_name":    "my-shop",
		"nested": map[string]any{
			"api_secret": "zzz",
			"engine":     "woocommerce",
		},
	}

	out := Redact(in)

	if out["root-password"] != "[redacted]" {
		t.Errorf("root-password not redacted: %v", out["root-password"])
	}
	if out["db_token"] != "[redacted]" {
		t.Errorf("db_token not redacted: %v", out["db_token"])
	}
	if out["secretValue"] != "[redacted]" {
		t.Errorf("secretValue not redacted: %v", out["secretValue"])
	}
	if out["store_name"] != "my-shop" {
		t.Errorf("store_name should survive unredacted, got %v", out["store_name"])
	}

	nested, ok := out["nested"].(map[string]any)
	if !ok {
		t.Fatalf("nested value lost its type: %v", out["nested"])
	}
	if nested["api_secret"] != "[redacted]" {
		t.Errorf("nested api_secret not redacted: %v", nested["api_secret"])
	}
	if nested["engine"] != "woocommerce" {
		t.Errorf("nested engine should survive unredacted, got %v", nested["engine"])
	}
}

func TestMemoryLog_HealthPing(t *testing.T) {
	l := NewMemoryLog(nil)
	if err := l.HealthPing(context.Background()); err != nil {
		t.Errorf("HealthPing: %v", err)
	}
}
