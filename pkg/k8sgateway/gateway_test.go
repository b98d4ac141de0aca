package k8sgateway

import (
	"context"
	"log/slog"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/wisbric/urumi-provisioner/internal/retry"
)

func TestEnsureNamespace_CreatesOnce(t *testing.T) {
	cs := k8sfake.NewSimpleClientset()
	gw := NewGateway(cs, nil, retry.DefaultConfig(), slog.Default())
	ctx := context.Background()

	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "store-abc12345"}}

	if err := gw.EnsureNamespace(ctx, ns); err != nil {
		t.Fatalf("first EnsureNamespace: %v", err)
	}
	// Second call must not error — AlreadyExists is treated as success.
	if err := gw.EnsureNamespace(ctx, ns); err != nil {
		t.Fatalf("second EnsureNamespace: %v", err)
	}

	got, err := cs.CoreV1().Namespaces().Get(ctx, "store-abc12345", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "store-abc12345" {
		t.Errorf("name = %q, want store-abc12345", got.Name)
	}
}

func TestGetNamespace_AbsentReturnsNil(t *testing.T) {
	cs := k8sfake.NewSimpleClientset()
	gw := NewGateway(cs, nil, retry.DefaultConfig(), slog.Default())

	ns, err := gw.GetNamespace(context.Background(), "store-missing1")
	if err != nil {
		t.Fatalf("GetNamespace: %v", err)
	}
	if ns != nil {
		t.Errorf("ns = %+v, want nil", ns)
	}
}

func TestDeleteNamespace_NotFoundIsSuccess(t *testing.T) {
	cs := k8sfake.NewSimpleClientset()
	gw := NewGateway(cs, nil, retry.DefaultConfig(), slog.Default())

	if err := gw.DeleteNamespace(context.Background(), "store-missing1"); err != nil {
		t.Errorf("DeleteNamespace on absent namespace: %v", err)
	}
}

func TestReadDeploymentReadyReplicas(t *testing.T) {
	cs := k8sfake.NewSimpleClientset()
	gw := NewGateway(cs, nil, retry.DefaultConfig(), slog.Default())
	ctx := context.Background()

	dep := &corev1.Pod{} // unused placeholder; no Deployment is created, so the read must fail
	_ = dep

	if _, err := gw.ReadDeploymentReadyReplicas(ctx, "store-abc12345", "app"); err == nil {
		t.Error("expected error reading a nonexistent deployment")
	}
}

func TestHealthPing(t *testing.T) {
	cs := k8sfake.NewSimpleClientset()
	gw := NewGateway(cs, nil, retry.DefaultConfig(), slog.Default())

	if err := gw.HealthPing(context.Background()); err != nil {
		t.Errorf("HealthPing: %v", err)
	}
}
