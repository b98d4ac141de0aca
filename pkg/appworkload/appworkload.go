// Package appworkload deploys the tenant's application workload: an admin
// credentials secret, a content PVC, a Deployment wired to the database
// connection descriptor, a ClusterIP service, and an ingress rule (spec §4.7).
package appworkload

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/wisbric/urumi-provisioner/internal/randsecret"
	"github.com/wisbric/urumi-provisioner/pkg/dbworkload"
)

const (
	deploymentName   = "app"
	serviceName      = "app"
	adminSecretName  = "admin-credentials"
	contentPVCName   = "content"
	containerPort    = 8080
	servicePort      = 80
	appImage         = "wordpress:6-apache"
	pathTypePrefix   = networkingv1.PathTypePrefix
	bodySizeAnno     = "nginx.ingress.kubernetes.io/proxy-body-size"
	readTimeoutAnno  = "nginx.ingress.kubernetes.io/proxy-read-timeout"
)

// Gateway is the subset of pkg/k8sgateway.Gateway the application workload needs.
type Gateway interface {
	EnsureSecret(ctx context.Context, namespace string, s *corev1.Secret) error
	EnsurePVC(ctx context.Context, namespace string, pvc *corev1.PersistentVolumeClaim) error
	EnsureDeployment(ctx context.Context, namespace string, d *appsv1.Deployment) error
	EnsureService(ctx context.Context, namespace string, svc *corev1.Service) error
	EnsureIngress(ctx context.Context, namespace string, ing *networkingv1.Ingress) error
	WaitDeploymentReady(ctx context.Context, namespace, name string, replicas int32, timeout time.Duration) error
}

// Config parameterizes the workload's storage size, readiness timeout, and
// cluster ingress settings (spec §6).
type Config struct {
	StorageSize  string
	ReadyTimeout time.Duration
	StoreDomain  string
	IngressClass string
}

// Deployer drives the application phase for one tenant namespace.
type Deployer struct {
	gw  Gateway
	cfg Config
}

// NewDeployer wraps gw with cfg.
func NewDeployer(gw Gateway, cfg Config) *Deployer {
	return &Deployer{gw: gw, cfg: cfg}
}

// Result is what the application phase hands back to the orchestrator for
// computing the tenant's public URLs.
type Result struct {
	Hostname string
}

// Deploy emits the admin secret, content PVC, deployment, service, and
// ingress for namespace, then waits for the deployment to report ready
// (spec §4.7).
func (d *Deployer) Deploy(ctx context.Context, namespace, storeID, storeName string, conn dbworkload.Conn) (Result, error) {
	adminPassword, err := randsecret.Generate(24)
	if err != nil {
		return Result{}, fmt.Errorf("generating admin password: %w", err)
	}

	hostname := fmt.Sprintf("store-%s.%s", storeID, d.cfg.StoreDomain)
	siteURL := fmt.Sprintf("http://%s", hostname)

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: adminSecretName},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{
			"admin-user":     "admin",
			"admin-password": adminPassword,
		},
	}
	if err := d.gw.EnsureSecret(ctx, namespace, secret); err != nil {
		return Result{}, fmt.Errorf("ensuring admin secret in %s: %w", namespace, err)
	}

	if err := d.gw.EnsurePVC(ctx, namespace, contentPVC(d.cfg.StorageSize)); err != nil {
		return Result{}, fmt.Errorf("ensuring content pvc in %s: %w", namespace, err)
	}

	if err := d.gw.EnsureDeployment(ctx, namespace, deployment(conn, storeName, siteURL)); err != nil {
		return Result{}, fmt.Errorf("ensuring app deployment in %s: %w", namespace, err)
	}

	if err := d.gw.EnsureService(ctx, namespace, service()); err != nil {
		return Result{}, fmt.Errorf("ensuring app service in %s: %w", namespace, err)
	}

	if err := d.gw.EnsureIngress(ctx, namespace, ingress(hostname, d.cfg.IngressClass)); err != nil {
		return Result{}, fmt.Errorf("ensuring app ingress in %s: %w", namespace, err)
	}

	timeout := d.cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	if err := d.gw.WaitDeploymentReady(ctx, namespace, deploymentName, 1, timeout); err != nil {
		return Result{}, fmt.Errorf("waiting for app deployment ready in %s: %w", namespace, err)
	}

	return Result{Hostname: hostname}, nil
}

func contentPVC(storageSize string) *corev1.PersistentVolumeClaim {
	if storageSize == "" {
		storageSize = "5Gi"
	}
	return &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: contentPVCName},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(storageSize),
				},
			},
		},
	}
}

func deployment(conn dbworkload.Conn, storeName, siteURL string) *appsv1.Deployment {
	replicas := int32(1)
	labels := map[string]string{"app": deploymentName}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "wordpress",
							Image: appImage,
							Ports: []corev1.ContainerPort{{ContainerPort: containerPort}},
							Env: []corev1.EnvVar{
								{Name: "WORDPRESS_DB_HOST", Value: fmt.Sprintf("%s:%d", conn.Host, conn.Port)},
								{Name: "WORDPRESS_DB_NAME", ValueFrom: secretRef(conn.SecretName, "db-name")},
								{Name: "WORDPRESS_DB_USER", ValueFrom: secretRef(conn.SecretName, "db-user")},
								{Name: "WORDPRESS_DB_PASSWORD", ValueFrom: secretRef(conn.SecretName, "db-password")},
								{Name: "WORDPRESS_ADMIN_USER", ValueFrom: secretRef(adminSecretName, "admin-user")},
								{Name: "WORDPRESS_ADMIN_PASSWORD", ValueFrom: secretRef(adminSecretName, "admin-password")},
								{Name: "WORDPRESS_SITE_URL", Value: siteURL},
								{Name: "WORDPRESS_STORE_NAME", Value: storeName},
							},
							ReadinessProbe: httpProbe(),
							LivenessProbe:  httpProbe(),
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("100m"),
									corev1.ResourceMemory: resource.MustParse("256Mi"),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("1"),
									corev1.ResourceMemory: resource.MustParse("1Gi"),
								},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: contentPVCName, MountPath: "/var/www/html/wp-content"},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: contentPVCName,
							VolumeSource: corev1.VolumeSource{
								PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: contentPVCName},
							},
						},
					},
				},
			},
		},
	}
}

func httpProbe() *corev1.Probe {
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{Path: "/", Port: intstr.FromInt32(containerPort)},
		},
		InitialDelaySeconds: 15,
		PeriodSeconds:       10,
		TimeoutSeconds:      5,
	}
}

func secretRef(name, key string) *corev1.EnvVarSource {
	return &corev1.EnvVarSource{
		SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: name},
			Key:                  key,
		},
	}
}

func service() *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: serviceName},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: map[string]string{"app": deploymentName},
			Ports: []corev1.ServicePort{
				{Name: "http", Port: servicePort, TargetPort: intstr.FromInt32(containerPort)},
			},
		},
	}
}

func ingress(hostname, ingressClass string) *networkingv1.Ingress {
	pt := pathTypePrefix
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name: "app",
			Annotations: map[string]string{
				bodySizeAnno:    "64m",
				readTimeoutAnno: "60",
			},
		},
		Spec: networkingv1.IngressSpec{
			IngressClassName: &ingressClass,
			Rules: []networkingv1.IngressRule{
				{
					Host: hostname,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     "/",
									PathType: &pt,
									Backend: networkingv1.IngressBackend{
										Service: &networkingv1.IngressServiceBackend{
											Name: serviceName,
											Port: networkingv1.ServiceBackendPort{Number: servicePort},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}
