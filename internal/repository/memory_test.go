package repository

import (
	"context"
	"testing"
	"time"

	"github.com/wisbric/urumi-provisioner/pkg/store"
)

func newTestStore(id string, status store.Status) *store.Store {
	now := time.Now().UTC()
	return &store.Store{
		ID:        id,
		Name:      "shop-" + id,
		Namespace: store.NamespaceFor(id),
		Engine:    store.EngineWooCommerce,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryRepository_CreateFindByID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := newTestStore("abc12345", store.StatusPending)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.FindByID(ctx, "abc12345")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Name != s.Name {
		t.Errorf("Name = %q, want %q", got.Name, s.Name)
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.FindByID(context.Background(), "missing1"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepository_Update_PartialFields(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	s := newTestStore("abc12345", store.StatusProvisioning)
	phase := store.PhaseNamespace
	s.Phase = &phase
	_ = repo.Create(ctx, s)

	dbPhase := store.PhaseDatabase
	ready := true
	updated, err := repo.Update(ctx, "abc12345", Patch{Phase: &dbPhase, DBReady: &ready})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Phase == nil || *updated.Phase != store.PhaseDatabase {
		t.Errorf("Phase = %v, want database", updated.Phase)
	}
	if !updated.DBReady {
		t.Errorf("DBReady = false, want true")
	}
	if updated.Name != s.Name {
		t.Errorf("Name changed unexpectedly: %q", updated.Name)
	}
}

func TestMemoryRepository_Update_ClearPhase(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	s := newTestStore("abc12345", store.StatusProvisioning)
	phase := store.PhaseValidation
	s.Phase = &phase
	_ = repo.Create(ctx, s)

	readyStatus := store.StatusReady
	updated, err := repo.Update(ctx, "abc12345", Patch{Status: &readyStatus, ClearPhase: true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Phase != nil {
		t.Errorf("Phase = %v, want nil", updated.Phase)
	}
	if updated.Status != store.StatusReady {
		t.Errorf("Status = %v, want ready", updated.Status)
	}
}

func TestMemoryRepository_FindAll_ExcludesDeletedAndOrdersDesc(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	older := newTestStore("aaaaaaaa", store.StatusReady)
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newTestStore("bbbbbbbb", store.StatusReady)
	newer.CreatedAt = time.Now()
	deleted := newTestStore("cccccccc", store.StatusDeleted)

	_ = repo.Create(ctx, older)
	_ = repo.Create(ctx, newer)
	_ = repo.Create(ctx, deleted)

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all[0].ID != "bbbbbbbb" || all[1].ID != "aaaaaaaa" {
		t.Errorf("order = [%s, %s], want [bbbbbbbb, aaaaaaaa]", all[0].ID, all[1].ID)
	}
}

func TestMemoryRepository_CountActive(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_ = repo.Create(ctx, newTestStore("a1111111", store.StatusPending))
	_ = repo.Create(ctx, newTestStore("a2222222", store.StatusProvisioning))
	_ = repo.Create(ctx, newTestStore("a3333333", store.StatusReady))
	_ = repo.Create(ctx, newTestStore("a4444444", store.StatusFailed))
	_ = repo.Create(ctx, newTestStore("a5555555", store.StatusDeleted))

	count, err := repo.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if count != 3 {
		t.Errorf("CountActive = %d, want 3", count)
	}
}

func TestMemoryRepository_SoftDelete_Idempotent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, newTestStore("abc12345", store.StatusReady))

	if err := repo.SoftDelete(ctx, "abc12345"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	got, err := repo.FindByID(ctx, "abc12345")
	if err != nil {
		t.Fatalf("FindByID after delete: %v", err)
	}
	if got.Status != store.StatusDeleted || got.DeletedAt == nil {
		t.Errorf("status = %v, deletedAt = %v, want deleted/non-nil", got.Status, got.DeletedAt)
	}

	if err := repo.SoftDelete(ctx, "abc12345"); err != nil {
		t.Fatalf("second SoftDelete: %v", err)
	}
	got, err = repo.FindByID(ctx, "abc12345")
	if err != nil {
		t.Fatalf("FindByID after second delete: %v", err)
	}
	if got.Status != store.StatusDeleted || got.DeletedAt == nil {
		t.Errorf("after second delete: status = %v, deletedAt = %v, want deleted/non-nil", got.Status, got.DeletedAt)
	}
}

func TestMemoryRepository_FindStaleProvisioning(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	stale := newTestStore("a1111111", store.StatusProvisioning)
	past := time.Now().Add(-time.Minute)
	stale.DeadlineAt = &past
	_ = repo.Create(ctx, stale)

	fresh := newTestStore("a2222222", store.StatusProvisioning)
	future := time.Now().Add(time.Hour)
	fresh.DeadlineAt = &future
	_ = repo.Create(ctx, fresh)

	out, err := repo.FindStaleProvisioning(ctx, time.Now())
	if err != nil {
		t.Fatalf("FindStaleProvisioning: %v", err)
	}
	if len(out) != 1 || out[0].ID != "a1111111" {
		t.Errorf("got %d stale records, want 1 matching a1111111", len(out))
	}
}
