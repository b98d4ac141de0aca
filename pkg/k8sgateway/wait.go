package k8sgateway

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const pollInterval = 2 * time.Second

// WaitDeploymentReady polls every 2s until the deployment's ready-replica
// count reaches replicas or timeout elapses (spec §4.7).
func (g *Gateway) WaitDeploymentReady(ctx context.Context, namespace, name string, replicas int32, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		ready, err := g.ReadDeploymentReadyReplicas(ctx, namespace, name)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return ready >= replicas, nil
	})
}

// WaitStatefulSetReady polls every 2s until the statefulset's ready-replica
// count reaches replicas or timeout elapses (spec §4.6).
func (g *Gateway) WaitStatefulSetReady(ctx context.Context, namespace, name string, replicas int32, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		ready, err := g.ReadStatefulSetReadyReplicas(ctx, namespace, name)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return ready >= replicas, nil
	})
}

// WaitNamespaceGone polls every 2s until GetNamespace reports the namespace
// absent or timeout elapses (spec §4.8 delete flow).
func (g *Gateway) WaitNamespaceGone(ctx context.Context, name string, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		ns, err := g.GetNamespace(ctx, name)
		if err != nil {
			return false, err
		}
		return ns == nil, nil
	})
}
