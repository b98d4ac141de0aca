package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wisbric/urumi-provisioner/internal/apierr"
	"github.com/wisbric/urumi-provisioner/internal/audit"
	"github.com/wisbric/urumi-provisioner/internal/repository"
	"github.com/wisbric/urumi-provisioner/pkg/store"
)

type fakeOrchestrator struct {
	createErr error
	deleteErr error
	created   *store.Store
}

func (f *fakeOrchestrator) CreateStore(_ context.Context, name string, engine store.Engine, _ string) (*store.Store, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	s := &store.Store{ID: "abc12345", Name: name, Engine: engine, Status: store.StatusProvisioning}
	f.created = s
	return s, nil
}

func (f *fakeOrchestrator) DeleteStore(context.Context, string, string) error {
	return f.deleteErr
}

func newTestHandler(orch *fakeOrchestrator, repo repository.Repository) *Handler {
	return NewHandler(orch, repo, audit.NewMemoryLog(nil), nil, nil)
}

func TestHandleCreate_Accepted(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := newTestHandler(&fakeOrchestrator{}, repo)

	body := `{"name":"acme-shop","engine":"woocommerce"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
}

func TestHandleCreate_RejectsInvalidName(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := newTestHandler(&fakeOrchestrator{}, repo)

	body := `{"name":"ab","engine":"woocommerce"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCreate_RejectsUnsupportedEngine(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := newTestHandler(&fakeOrchestrator{}, repo)

	body := `{"name":"acme-shop","engine":"shopify"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCreate_PropagatesOrchestratorConflict(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := newTestHandler(&fakeOrchestrator{createErr: apierr.Conflict("active store cap reached")}, repo)

	body := `{"name":"acme-shop","engine":"woocommerce"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHandleGet_NotFound(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := newTestHandler(&fakeOrchestrator{}, repo)

	r := httptest.NewRequest(http.MethodGet, "/missing1", nil)
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleList_ReturnsStores(t *testing.T) {
	repo := repository.NewMemoryRepository()
	_ = repo.Create(context.Background(), &store.Store{ID: "abc12345", Name: "acme-shop", Status: store.StatusReady})
	h := newTestHandler(&fakeOrchestrator{}, repo)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var envelope struct {
		Data []*store.Store `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].ID != "abc12345" {
		t.Errorf("got %+v, want one store with id abc12345", envelope.Data)
	}
}

func TestHandleDelete_NotFoundPropagates(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := newTestHandler(&fakeOrchestrator{deleteErr: apierr.NotFound("store not found")}, repo)

	r := httptest.NewRequest(http.MethodDelete, "/missing1", nil)
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleEvents_ReturnsFilteredHistory(t *testing.T) {
	repo := repository.NewMemoryRepository()
	auditLog := audit.NewMemoryLog(nil)
	storeID := "abc12345"
	_, _ = auditLog.Record(context.Background(), audit.Entry{Action: "store.create.requested", StoreID: &storeID})

	h := NewHandler(&fakeOrchestrator{}, repo, auditLog, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/abc12345/events", nil)
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var envelope struct {
		Data []audit.Entry `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].Action != "store.create.requested" {
		t.Errorf("got %+v, want one matching entry", envelope.Data)
	}
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	r.RemoteAddr = "10.0.0.1:54321"

	if got := clientIP(r); got != "203.0.113.5" {
		t.Errorf("clientIP() = %q, want 203.0.113.5", got)
	}
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:443"

	if got := clientIP(r); got != "198.51.100.7" {
		t.Errorf("clientIP() = %q, want 198.51.100.7", got)
	}
}
