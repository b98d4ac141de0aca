package k8sgateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/wisbric/urumi-provisioner/internal/retry"
	"github.com/wisbric/urumi-provisioner/internal/telemetry"
)

// Gateway is the provisioning pipeline's only point of contact with the
// cluster API. Every mutating call goes through retryOp so the retry
// contract (spec §4.1) applies uniformly.
type Gateway struct {
	clientset kubernetes.Interface
	restCfg   *rest.Config
	retryCfg  retry.Config
	logger    *slog.Logger
}

// NewGateway wraps an already-constructed clientset and REST config (the
// latter needed only by ExecInPod's SPDY executor).
func NewGateway(clientset kubernetes.Interface, restCfg *rest.Config, retryCfg retry.Config, logger *slog.Logger) *Gateway {
	return &Gateway{clientset: clientset, restCfg: restCfg, retryCfg: retryCfg, logger: logger}
}

func (g *Gateway) retryOp(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	onRetry := func(attempt int, err error, delay time.Duration) {
		telemetry.GatewayRetriesTotal.WithLabelValues(op).Inc()
		g.logger.Warn("retrying cluster operation", "operation", op, "attempt", attempt, "delay", delay, "error", err)
	}
	_, err := retry.Do(ctx, g.retryCfg, isRetryable, onRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// EnsureNamespace creates ns if absent; an AlreadyExists conflict is treated
// as success (spec §4.2 idempotency rule).
func (g *Gateway) EnsureNamespace(ctx context.Context, ns *corev1.Namespace) error {
	return g.retryOp(ctx, "ensure_namespace", func(ctx context.Context) error {
		_, err := g.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsureQuota(ctx context.Context, namespace string, q *corev1.ResourceQuota) error {
	return g.retryOp(ctx, "ensure_quota", func(ctx context.Context) error {
		_, err := g.clientset.CoreV1().ResourceQuotas(namespace).Create(ctx, q, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsureLimitRange(ctx context.Context, namespace string, lr *corev1.LimitRange) error {
	return g.retryOp(ctx, "ensure_limit_range", func(ctx context.Context) error {
		_, err := g.clientset.CoreV1().LimitRanges(namespace).Create(ctx, lr, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsureNetworkPolicy(ctx context.Context, namespace string, np *networkingv1.NetworkPolicy) error {
	return g.retryOp(ctx, "ensure_network_policy", func(ctx context.Context) error {
		_, err := g.clientset.NetworkingV1().NetworkPolicies(namespace).Create(ctx, np, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsureSecret(ctx context.Context, namespace string, s *corev1.Secret) error {
	return g.retryOp(ctx, "ensure_secret", func(ctx context.Context) error {
		_, err := g.clientset.CoreV1().Secrets(namespace).Create(ctx, s, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsureStatefulSet(ctx context.Context, namespace string, ss *appsv1.StatefulSet) error {
	return g.retryOp(ctx, "ensure_statefulset", func(ctx context.Context) error {
		_, err := g.clientset.AppsV1().StatefulSets(namespace).Create(ctx, ss, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsureDeployment(ctx context.Context, namespace string, d *appsv1.Deployment) error {
	return g.retryOp(ctx, "ensure_deployment", func(ctx context.Context) error {
		_, err := g.clientset.AppsV1().Deployments(namespace).Create(ctx, d, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsureService(ctx context.Context, namespace string, svc *corev1.Service) error {
	return g.retryOp(ctx, "ensure_service", func(ctx context.Context) error {
		_, err := g.clientset.CoreV1().Services(namespace).Create(ctx, svc, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsurePVC(ctx context.Context, namespace string, pvc *corev1.PersistentVolumeClaim) error {
	return g.retryOp(ctx, "ensure_pvc", func(ctx context.Context) error {
		_, err := g.clientset.CoreV1().PersistentVolumeClaims(namespace).Create(ctx, pvc, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

func (g *Gateway) EnsureIngress(ctx context.Context, namespace string, ing *networkingv1.Ingress) error {
	return g.retryOp(ctx, "ensure_ingress", func(ctx context.Context) error {
		_, err := g.clientset.NetworkingV1().Ingresses(namespace).Create(ctx, ing, metav1.CreateOptions{})
		if err != nil && !isAlreadyExists(err) {
			return err
		}
		return nil
	})
}

// ReadDeploymentReadyReplicas returns the current ready-replica count.
func (g *Gateway) ReadDeploymentReadyReplicas(ctx context.Context, namespace, name string) (int32, error) {
	var ready int32
	err := g.retryOp(ctx, "read_deployment", func(ctx context.Context) error {
		d, err := g.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		ready = d.Status.ReadyReplicas
		return nil
	})
	return ready, err
}

// ReadStatefulSetReadyReplicas returns the current ready-replica count.
func (g *Gateway) ReadStatefulSetReadyReplicas(ctx context.Context, namespace, name string) (int32, error) {
	var ready int32
	err := g.retryOp(ctx, "read_statefulset", func(ctx context.Context) error {
		ss, err := g.clientset.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		ready = ss.Status.ReadyReplicas
		return nil
	})
	return ready, err
}

// DeleteNamespace deletes name with foreground propagation (children removed
// before the parent disappears). NotFound is treated as success.
func (g *Gateway) DeleteNamespace(ctx context.Context, name string) error {
	policy := metav1.DeletePropagationForeground
	return g.retryOp(ctx, "delete_namespace", func(ctx context.Context) error {
		err := g.clientset.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
		if err != nil && !isNotFound(err) {
			return err
		}
		return nil
	})
}

// GetNamespace returns the namespace, or (nil, nil) if it is gone.
func (g *Gateway) GetNamespace(ctx context.Context, name string) (*corev1.Namespace, error) {
	var ns *corev1.Namespace
	err := g.retryOp(ctx, "get_namespace", func(ctx context.Context) error {
		got, err := g.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if isNotFound(err) {
			ns = nil
			return nil
		}
		if err != nil {
			return err
		}
		ns = got
		return nil
	})
	return ns, err
}

// ListPodsByLabel returns the names of pods in namespace matching selector.
func (g *Gateway) ListPodsByLabel(ctx context.Context, namespace, selector string) ([]string, error) {
	var names []string
	err := g.retryOp(ctx, "list_pods", func(ctx context.Context) error {
		list, err := g.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil {
			return err
		}
		names = make([]string, 0, len(list.Items))
		for _, p := range list.Items {
			names = append(names, p.Name)
		}
		return nil
	})
	return names, err
}

// HealthPing performs one lightweight read to confirm the cluster API is
// reachable.
func (g *Gateway) HealthPing(ctx context.Context) error {
	_, err := g.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("gateway health ping: %w", err)
	}
	return nil
}
