// Package tenancy brings a freshly-created namespace to a state safe for a
// tenant workload: standard labels, a resource quota, a container limit
// range, and a deny-by-default network policy with explicit allow-lists
// (spec §4.5). Every step is individually idempotent and retried within the
// shared deadline by the gateway it calls through.
package tenancy

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Gateway is the subset of pkg/k8sgateway.Gateway the tenancy builder needs.
type Gateway interface {
	EnsureNamespace(ctx context.Context, ns *corev1.Namespace) error
	EnsureQuota(ctx context.Context, namespace string, q *corev1.ResourceQuota) error
	EnsureLimitRange(ctx context.Context, namespace string, lr *corev1.LimitRange) error
	EnsureNetworkPolicy(ctx context.Context, namespace string, np *networkingv1.NetworkPolicy) error
}

// Builder installs the isolation objects for one tenant namespace.
type Builder struct {
	gw Gateway
}

// NewBuilder wraps gw.
func NewBuilder(gw Gateway) *Builder {
	return &Builder{gw: gw}
}

// Params describes the tenant the namespace is being created for.
type Params struct {
	StoreID   string
	StoreName string
	Engine    string
}

const managedByLabel = "managed-by"
const managedByValue = "urumi-platform"

// Build brings namespace to a tenant-safe state: standard labels, quota,
// limit range, and network policy (spec §4.5, steps 1-4).
func (b *Builder) Build(ctx context.Context, namespace string, p Params) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: namespace,
			Labels: map[string]string{
				managedByLabel: managedByValue,
				"store-id":     p.StoreID,
				"store-name":   p.StoreName,
				"engine":       p.Engine,
			},
			Annotations: map[string]string{
				"urumi-platform/created-at": time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
	if err := b.gw.EnsureNamespace(ctx, ns); err != nil {
		return fmt.Errorf("ensuring namespace %s: %w", namespace, err)
	}

	if err := b.gw.EnsureQuota(ctx, namespace, quota()); err != nil {
		return fmt.Errorf("ensuring resource quota in %s: %w", namespace, err)
	}

	if err := b.gw.EnsureLimitRange(ctx, namespace, limitRange()); err != nil {
		return fmt.Errorf("ensuring limit range in %s: %w", namespace, err)
	}

	if err := b.gw.EnsureNetworkPolicy(ctx, namespace, networkPolicy()); err != nil {
		return fmt.Errorf("ensuring network policy in %s: %w", namespace, err)
	}

	return nil
}

// quota builds the hard-limits ResourceQuota from spec §4.5 step 2.
func quota() *corev1.ResourceQuota {
	return &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{Name: "tenant-quota"},
		Spec: corev1.ResourceQuotaSpec{
			Hard: corev1.ResourceList{
				corev1.ResourceRequestsCPU:    resource.MustParse("500m"),
				corev1.ResourceLimitsCPU:      resource.MustParse("2"),
				corev1.ResourceRequestsMemory: resource.MustParse("512Mi"),
				corev1.ResourceLimitsMemory:   resource.MustParse("2Gi"),
				corev1.ResourceRequestsStorage: resource.MustParse("5Gi"),
				corev1.ResourcePods:            resource.MustParse("10"),
				corev1.ResourceServices:        resource.MustParse("5"),
				corev1.ResourceSecrets:         resource.MustParse("10"),
				corev1.ResourceConfigMaps:      resource.MustParse("10"),
				corev1.ResourcePersistentVolumeClaims: resource.MustParse("3"),
			},
		},
	}
}

// limitRange builds the container default/min/max LimitRange from spec
// §4.5 step 3.
func limitRange() *corev1.LimitRange {
	return &corev1.LimitRange{
		ObjectMeta: metav1.ObjectMeta{Name: "tenant-limits"},
		Spec: corev1.LimitRangeSpec{
			Limits: []corev1.LimitRangeItem{
				{
					Type: corev1.LimitTypeContainer,
					Default: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("500m"),
						corev1.ResourceMemory: resource.MustParse("512Mi"),
					},
					DefaultRequest: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("100m"),
						corev1.ResourceMemory: resource.MustParse("128Mi"),
					},
					Min: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("50m"),
						corev1.ResourceMemory: resource.MustParse("64Mi"),
					},
					Max: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("1"),
						corev1.ResourceMemory: resource.MustParse("1Gi"),
					},
				},
			},
		},
	}
}

// networkPolicy builds the deny-by-default policy with explicit allow-lists
// from spec §4.5 step 4.
func networkPolicy() *networkingv1.NetworkPolicy {
	tcp := corev1.ProtocolTCP
	udp := corev1.ProtocolUDP
	dnsPort := intstr.FromInt(53)
	httpPort := intstr.FromInt(80)
	httpsPort := intstr.FromInt(443)

	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: "tenant-default-deny"},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{}, // selects all pods in the namespace
			PolicyTypes: []networkingv1.PolicyType{
				networkingv1.PolicyTypeIngress,
				networkingv1.PolicyTypeEgress,
			},
			Ingress: []networkingv1.NetworkPolicyIngressRule{
				{
					// allow from the ingress controller's namespace
					From: []networkingv1.NetworkPolicyPeer{
						{
							NamespaceSelector: &metav1.LabelSelector{
								MatchLabels: map[string]string{"kubernetes.io/metadata.name": "ingress-nginx"},
							},
						},
					},
				},
				{
					// allow intra-namespace, all pods to all pods
					From: []networkingv1.NetworkPolicyPeer{
						{PodSelector: &metav1.LabelSelector{}},
					},
				},
			},
			Egress: []networkingv1.NetworkPolicyEgressRule{
				{
					// allow DNS to cluster DNS
					To: []networkingv1.NetworkPolicyPeer{
						{NamespaceSelector: &metav1.LabelSelector{}},
					},
					Ports: []networkingv1.NetworkPolicyPort{
						{Protocol: &udp, Port: &dnsPort},
						{Protocol: &tcp, Port: &dnsPort},
					},
				},
				{
					// allow intra-namespace
					To: []networkingv1.NetworkPolicyPeer{
						{PodSelector: &metav1.LabelSelector{}},
					},
				},
				{
					// allow outbound HTTP/HTTPS anywhere, for plugin/package fetches
					To: []networkingv1.NetworkPolicyPeer{
						{
							IPBlock: &networkingv1.IPBlock{CIDR: "0.0.0.0/0"},
						},
					},
					Ports: []networkingv1.NetworkPolicyPort{
						{Protocol: &tcp, Port: &httpPort},
						{Protocol: &tcp, Port: &httpsPort},
					},
				},
			},
		},
	}
}
